package metrics

import (
	"log/slog"
	"time"
)

// Pipeline groups the series updated by the republishing pipeline. One
// instance is created at startup and passed to every component that writes
// to it; counters are independent and not updated atomically as a set.
type Pipeline struct {
	Registry *Registry

	Processed       *Counter
	Failed          *Counter
	EnrichmentCalls *Counter
	Fallbacks       *Counter
	CacheHits       *Counter
	CacheMisses     *Counter
	PendingGroups   *Gauge

	EnrichmentLatency *Histogram
}

func NewPipeline() *Pipeline {
	r := NewRegistry()
	return &Pipeline{
		Registry:        r,
		Processed:       r.Counter("listingbot_posts_processed_total", "Units republished to the target feed", ""),
		Failed:          r.Counter("listingbot_posts_failed_total", "Units lost to publish errors or handler failures", ""),
		EnrichmentCalls: r.Counter("listingbot_enrichment_calls_total", "Model invocations, retries included", ""),
		Fallbacks:       r.Counter("listingbot_fallbacks_total", "Units republished verbatim", ""),
		CacheHits:       r.Counter("listingbot_cache_hits_total", "Extraction cache hits", ""),
		CacheMisses:     r.Counter("listingbot_cache_misses_total", "Extraction cache misses", ""),
		PendingGroups:   r.Gauge("listingbot_album_groups_pending", "Albums waiting for their debounce window", ""),
		EnrichmentLatency: r.Histogram("listingbot_enrichment_latency_seconds", "Model call latency in seconds", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60}),
	}
}

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	Processed       int64
	Failed          int64
	EnrichmentCalls int64
	Fallbacks       int64
	StartTime       time.Time
	Uptime          time.Duration
}

func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Processed:       p.Processed.Value(),
		Failed:          p.Failed.Value(),
		EnrichmentCalls: p.EnrichmentCalls.Value(),
		Fallbacks:       p.Fallbacks.Value(),
		StartTime:       p.Registry.StartTime(),
		Uptime:          p.Registry.Uptime(),
	}
}

// LogStats writes the snapshot as a single log line.
func (p *Pipeline) LogStats(logger *slog.Logger) {
	s := p.Snapshot()
	logger.Info("bot stats",
		"processed", s.Processed,
		"failed", s.Failed,
		"enrichment_calls", s.EnrichmentCalls,
		"fallbacks", s.Fallbacks,
		"uptime", s.Uptime.Round(time.Second),
	)
}
