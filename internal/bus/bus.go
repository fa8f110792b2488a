// Package bus carries raw inbound items from the transport to the runner.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"listingbot/internal/domain"
)

const defaultPublishTimeout = 10 * time.Second

// InMemoryBus is a buffered Go channel of inbound items.
type InMemoryBus struct {
	inbound        chan domain.Item
	publishTimeout time.Duration
	mu             sync.RWMutex
	closed         bool
	dropped        atomic.Int64
	logger         *slog.Logger
}

// New creates an InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:        make(chan domain.Item, bufferSize),
		publishTimeout: defaultPublishTimeout,
		logger:         logger,
	}
}

// Publish blocks up to the publish timeout while the buffer is full, then
// drops the item.
func (b *InMemoryBus) Publish(item domain.Item) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "message_id", item.MessageID)
		return
	}

	select {
	case b.inbound <- item:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "message_id", item.MessageID, "group", item.GroupKey)
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- item:
		b.logger.Info("item delivered after wait", "message_id", item.MessageID)
	case <-timer.C:
		b.dropped.Add(1)
		b.logger.Error("item dropped: bus full",
			"message_id", item.MessageID,
			"group", item.GroupKey,
			"waited", b.publishTimeout,
		)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Item {
	return b.inbound
}

// Dropped returns how many items were discarded because the bus stayed full.
func (b *InMemoryBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting items and closes the subscription channel.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
