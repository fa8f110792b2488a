package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"listingbot/internal/domain"
)

// Failover tries completers in order and returns the first answer.
type Failover struct {
	completers []domain.Completer
	logger     *slog.Logger
}

// NewFailover chains the given completers. At least one is required.
func NewFailover(completers []domain.Completer, logger *slog.Logger) *Failover {
	return &Failover{completers: completers, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.completers))
	for i, c := range f.completers {
		names[i] = c.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

// Complete returns the first successful completion. A cancelled context
// stops the chain instead of moving on to the next completer.
func (f *Failover) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if len(f.completers) == 0 {
		return "", errors.New("failover: no completers configured")
	}

	var lastErr error
	for i, c := range f.completers {
		out, err := c.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback provider", "provider", c.Name(), "attempt", i+1)
			}
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("failover: provider failed, trying next",
			"provider", c.Name(),
			"attempt", i+1,
			"err", err,
		)
	}
	return "", fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
