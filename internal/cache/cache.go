package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache provides thread-safe in-memory caching with idle expiry. Pinned
// entries never expire.
type Cache[V any] struct {
	entries map[string]*Entry[V]
	mutex   sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	onEvict func(key string, value V)
}

// Entry represents a cached item with metadata
type Entry[V any] struct {
	Key        string
	Value      V
	CreatedAt  time.Time
	AccessedAt time.Time
	ExpiresAt  time.Time
	Pinned     bool
	Source     string
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock replaces time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithEvictHook is called, outside the lock, for every entry removed by
// CleanupStale.
func WithEvictHook[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) { c.onEvict = fn }
}

// New creates a cache whose unpinned entries expire after ttl without access.
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*Entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores an expiring value.
func (c *Cache[V]) Set(key string, value V, source string) {
	c.set(key, value, source, false)
}

// SetPinned stores a value that never expires until unpinned.
func (c *Cache[V]) SetPinned(key string, value V, source string) {
	c.set(key, value, source, true)
}

func (c *Cache[V]) set(key string, value V, source string, pinned bool) {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = &Entry[V]{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		AccessedAt: now,
		ExpiresAt:  now.Add(c.ttl),
		Pinned:     pinned,
		Source:     source,
	}
}

// Get returns a live value and extends its expiry.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists || c.stale(entry, now) {
		var zero V
		return zero, false
	}
	entry.AccessedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	return entry.Value, true
}

// GetWithMetadata returns a copy of the entry, stale or not, without
// touching it.
func (c *Cache[V]) GetWithMetadata(key string) (Entry[V], bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return Entry[V]{}, false
	}
	return *entry, true
}

// Pin stops key from expiring, reviving it if it is stale but not yet
// cleaned up. It reports whether the key exists.
func (c *Cache[V]) Pin(key string) bool {
	return c.setPinned(key, true)
}

// Unpin lets key expire after the idle ttl from now.
func (c *Cache[V]) Unpin(key string) bool {
	return c.setPinned(key, false)
}

func (c *Cache[V]) setPinned(key string, pinned bool) bool {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return false
	}
	entry.Pinned = pinned
	entry.ExpiresAt = now.Add(c.ttl)
	return true
}

func (c *Cache[V]) stale(entry *Entry[V], now time.Time) bool {
	return !entry.Pinned && now.After(entry.ExpiresAt)
}

// Delete removes an entry from cache
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
}

// Keys returns all cache keys, stale ones included.
func (c *Cache[V]) Keys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Range calls fn for every live entry until fn returns false. fn must not
// call back into the cache.
func (c *Cache[V]) Range(fn func(key string, value V) bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	for key, entry := range c.entries {
		if c.stale(entry, now) {
			continue
		}
		if !fn(key, entry.Value) {
			return
		}
	}
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	stats := Stats{
		TotalEntries: len(c.entries),
	}

	for _, entry := range c.entries {
		switch {
		case entry.Pinned:
			stats.PinnedEntries++
		case c.stale(entry, now):
			stats.StaleEntries++
		default:
			stats.FreshEntries++
		}

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	return stats
}

// CleanupStale removes all stale entries from cache
func (c *Cache[V]) CleanupStale() int {
	c.mutex.Lock()
	now := c.now()
	var evicted []*Entry[V]
	for key, entry := range c.entries {
		if c.stale(entry, now) {
			delete(c.entries, key)
			evicted = append(evicted, entry)
		}
	}
	c.mutex.Unlock()

	if c.onEvict != nil {
		for _, entry := range evicted {
			c.onEvict(entry.Key, entry.Value)
		}
	}
	return len(evicted)
}

// StartPeriodicCleanup starts a goroutine that periodically cleans up stale
// entries until ctx is done.
func (c *Cache[V]) StartPeriodicCleanup(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Cache cleanup: recovered from panic",
					zap.Any("error", r), zap.Stack("stack_trace"))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanupStale(); removed > 0 {
					logger.Debug("Cache cleanup removed stale entries", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats provides cache usage statistics
type Stats struct {
	TotalEntries  int
	FreshEntries  int
	StaleEntries  int
	PinnedEntries int
	OldestEntry   time.Time
	NewestEntry   time.Time
}
