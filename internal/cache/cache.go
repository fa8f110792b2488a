// Package cache memoizes enrichment results keyed by (operation, input text).
// State lives in process memory only and is lost on restart.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache is a content-addressed in-memory store, safe for concurrent use.
// Concurrent writes of the same key are last-writer-wins.
type Cache struct {
	store  *ttlcache.Cache[string, []byte]
	logger *slog.Logger
}

func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		// A hit must not extend the entry's lifetime.
		store:  ttlcache.New(ttlcache.WithDisableTouchOnHit[string, []byte]()),
		logger: logger,
	}
}

// Key fingerprints an operation name and its input text.
func Key(text, operation string) string {
	sum := md5.Sum([]byte(operation + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the stored value, ignoring entries whose TTL has passed.
func (c *Cache) Get(text, operation string) ([]byte, bool) {
	item := c.store.Get(Key(text, operation))
	if item == nil || item.IsExpired() {
		return nil, false
	}
	c.logger.Debug("cache hit", "op", operation)
	return item.Value(), true
}

// Set stores value under (text, operation). ttl <= 0 keeps it until process
// exit.
func (c *Cache) Set(text, operation string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c.store.Set(Key(text, operation), value, ttl)
	c.logger.Debug("cache set", "op", operation, "ttl", ttl)
}

// Len returns the number of stored entries. Expired entries may be counted
// until the next Purge.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	before := c.store.Len()
	c.store.DeleteExpired()
	return max(before-c.store.Len(), 0)
}
