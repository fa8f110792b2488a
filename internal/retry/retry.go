// Package retry wraps failable enrichment calls with bounded retries.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Policy is a fixed-delay retry policy. Every error is retried the same way;
// malformed requests are not told apart from transient failures.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// Do calls fn until it succeeds or the policy runs out of attempts. The error
// of the final attempt is returned wrapped, so errors.Is/As still see it.
// Waits between attempts end early when ctx is cancelled.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.attempts()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts {
			logger.Error("all retries exhausted", "op", op, "attempts", attempts, "err", err)
			return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
		}

		logger.Warn("attempt failed, retrying",
			"op", op, "attempt", attempt, "delay", p.Delay, "err", err)

		if p.Delay <= 0 {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
