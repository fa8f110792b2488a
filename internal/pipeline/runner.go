package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"listingbot/internal/domain"
	"listingbot/internal/metrics"
)

// Aggregator turns inbound items into units; see album.Aggregator.
type Aggregator interface {
	Observe(ctx context.Context, item domain.Item) (domain.Unit, bool)
}

type RunnerConfig struct {
	Aggregator    Aggregator
	Pipeline      *Pipeline
	Metrics       *metrics.Pipeline
	StatsInterval time.Duration // 0 disables the periodic stats line
	Logger        *slog.Logger
}

// Runner fans inbound items out to one goroutine each.
type Runner struct {
	agg      Aggregator
	pipeline *Pipeline
	metrics  *metrics.Pipeline
	interval time.Duration
	logger   *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Metrics == nil {
		cfg.Metrics = cfg.Pipeline.metrics
	}
	return &Runner{
		agg:      cfg.Aggregator,
		pipeline: cfg.Pipeline,
		metrics:  cfg.Metrics,
		interval: cfg.StatsInterval,
		logger:   cfg.Logger,
	}
}

// Run consumes items until ctx is cancelled or the channel closes, then waits
// for in-flight units before returning.
func (r *Runner) Run(ctx context.Context, items <-chan domain.Item) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		r.metrics.LogStats(r.logger)
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping, waiting for in-flight units")
			return
		case <-tick:
			r.metrics.LogStats(r.logger)
		case item, ok := <-items:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.handle(ctx, item)
			}()
		}
	}
}

func (r *Runner) handle(ctx context.Context, item domain.Item) {
	unit, ok := r.agg.Observe(ctx, item)
	if !ok {
		return
	}
	r.pipeline.Guard(ctx, unit)
}
