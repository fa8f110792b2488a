package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"listingbot/internal/domain"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig trips the breaker after Failures consecutive errors and keeps
// it open for Cooldown before letting a single trial request through.
type BreakerConfig struct {
	Failures uint32
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Breaker short-circuits a completer that keeps failing, so a failover chain
// moves on without waiting for another timeout.
type Breaker struct {
	next domain.Completer
	cb   *gobreaker.CircuitBreaker[string]
}

func NewBreaker(next domain.Completer, cfg BreakerConfig) *Breaker {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		// Our own cancellation says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("provider circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State reports closed, half-open or open.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.Complete(ctx, req)
	})
}
