// Package album groups individually delivered album items into units.
//
// Telegram delivers every photo of an album as its own message sharing a
// media group id, with no marker for the last one. The aggregator buffers
// items per group and flushes a group once no sibling has arrived for a full
// debounce window. A sibling delayed past the window starts a new group.
package album

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"listingbot/internal/domain"
	"listingbot/internal/metrics"

	"github.com/google/uuid"
)

const DefaultWindow = 1500 * time.Millisecond

// buffer collects the items of one group. epoch is taken from an
// aggregator-wide sequence on every append, so a stale waiter can never match
// a newer buffer reusing the same key. Only the waiter holding the current
// epoch may flush.
type buffer struct {
	items []domain.Item
	epoch uint64
}

// Aggregator is safe for concurrent use; each inbound item is expected to be
// observed from its own goroutine.
type Aggregator struct {
	window  time.Duration
	logger  *slog.Logger
	pending *metrics.Gauge

	mu     sync.Mutex
	seq    uint64
	groups map[string]*buffer
}

type Config struct {
	Window  time.Duration
	Logger  *slog.Logger
	Pending *metrics.Gauge // optional
}

func New(cfg Config) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		window:  cfg.Window,
		logger:  cfg.Logger,
		pending: cfg.Pending,
		groups:  make(map[string]*buffer),
	}
}

// Observe feeds one item. Items without a group key come back immediately as
// a single-item unit. Grouped items block for the debounce window; the call
// that still holds the latest epoch afterwards returns the whole group sorted
// by message id, every other call returns false. Cancelling ctx abandons the
// wait and returns false.
func (a *Aggregator) Observe(ctx context.Context, item domain.Item) (domain.Unit, bool) {
	if item.GroupKey == "" {
		return domain.Unit{ID: uuid.NewString(), Items: []domain.Item{item}}, true
	}

	epoch := a.add(item)

	timer := time.NewTimer(a.window)
	select {
	case <-ctx.Done():
		timer.Stop()
		return domain.Unit{}, false
	case <-timer.C:
	}

	items, ok := a.take(item.GroupKey, epoch)
	if !ok {
		return domain.Unit{}, false
	}
	domain.SortItems(items)
	a.logger.Debug("album flushed", "group", item.GroupKey, "items", len(items))
	return domain.Unit{ID: uuid.NewString(), GroupKey: item.GroupKey, Items: items}, true
}

// Pending returns the number of groups still inside their window.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

func (a *Aggregator) add(item domain.Item) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.groups[item.GroupKey]
	if !ok {
		buf = &buffer{}
		a.groups[item.GroupKey] = buf
		if a.pending != nil {
			a.pending.Inc()
		}
	}
	a.seq++
	buf.items = append(buf.items, item)
	buf.epoch = a.seq
	return buf.epoch
}

// take removes the group if epoch is still current.
func (a *Aggregator) take(key string, epoch uint64) ([]domain.Item, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.groups[key]
	if !ok || buf.epoch != epoch {
		return nil, false
	}
	delete(a.groups, key)
	if a.pending != nil {
		a.pending.Dec()
	}
	return buf.items, true
}
