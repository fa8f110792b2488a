// Package enrich turns listing text into structured data and a rewritten
// description using a text-completion model.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"listingbot/internal/cache"
	"listingbot/internal/domain"
	"listingbot/internal/metrics"
	"listingbot/internal/retry"
)

const extractOperation = "base_data"

var (
	ErrEmptyInput    = errors.New("enrich: empty input text")
	ErrInvalidRecord = errors.New("enrich: model returned an invalid record")
)

type ExtractorConfig struct {
	Model       domain.Completer
	Cache       *cache.Cache
	CacheTTL    time.Duration // <= 0 keeps entries for the process lifetime
	Retry       retry.Policy
	Temperature float64
	Metrics     *metrics.Pipeline
	Logger      *slog.Logger
}

// Extractor pulls a PropertyRecord out of free listing text.
type Extractor struct {
	model       domain.Completer
	cache       *cache.Cache
	ttl         time.Duration
	policy      retry.Policy
	temperature float64
	metrics     *metrics.Pipeline
	logger      *slog.Logger
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewPipeline()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cfg.Logger)
	}
	return &Extractor{
		model:       cfg.Model,
		cache:       cfg.Cache,
		ttl:         cfg.CacheTTL,
		policy:      cfg.Retry,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Extract returns the structured record for text. A returned record never
// has a blank field. Results are cached per text; a model failure or an
// unparseable answer on every attempt is returned as an error.
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.PropertyRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if rec, ok := e.cached(text); ok {
		e.metrics.CacheHits.Inc()
		e.logger.Info("using cached base data")
		return rec, nil
	}
	e.metrics.CacheMisses.Inc()

	req := domain.CompletionRequest{
		Prompt:      extractionPrompt(text),
		Mode:        domain.ModeJSON,
		Temperature: e.temperature,
	}
	rec, err := retry.Do(ctx, e.policy, e.logger, "extract", func(ctx context.Context) (*domain.PropertyRecord, error) {
		raw, err := observeCall(ctx, e.model, e.metrics, req)
		if err != nil {
			return nil, err
		}
		var rec domain.PropertyRecord
		if err := decodeModelJSON(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return &rec, nil
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		e.cache.Set(text, extractOperation, data, e.ttl)
	}
	e.logger.Debug("extracted base data",
		"type", rec.Type, "price", rec.Price, "location", rec.Location)
	return rec, nil
}

func (e *Extractor) cached(text string) (*domain.PropertyRecord, bool) {
	data, ok := e.cache.Get(text, extractOperation)
	if !ok {
		return nil, false
	}
	var rec domain.PropertyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		e.logger.Warn("dropping unreadable cache entry", "err", err)
		return nil, false
	}
	return &rec, true
}

// observeCall runs one model attempt and records it.
func observeCall(ctx context.Context, model domain.Completer, m *metrics.Pipeline, req domain.CompletionRequest) (string, error) {
	m.EnrichmentCalls.Inc()
	start := time.Now()
	out, err := model.Complete(ctx, req)
	m.EnrichmentLatency.Observe(time.Since(start).Seconds())
	return out, err
}
