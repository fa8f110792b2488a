package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"listingbot/internal/domain"
)

// Guard runs Handle and absorbs whatever it throws back: returned errors and
// panics alike are logged and counted as failed. It never propagates.
func (p *Pipeline) Guard(ctx context.Context, unit domain.Unit) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Failed.Inc()
			p.logger.Error("panic while handling unit",
				"unit", unit.ID,
				"group", unit.GroupKey,
				"messages", unit.MessageIDs(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := p.Handle(ctx, unit); err != nil {
		p.metrics.Failed.Inc()
		p.logger.Error("unit not republished",
			"unit", unit.ID,
			"group", unit.GroupKey,
			"messages", unit.MessageIDs(),
			"err", err,
		)
	}
}
