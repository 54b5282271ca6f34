package cache

import (
	"sync"
	"time"
)

// Config controls cache behavior. Callers construct a cache explicitly and
// pass it by reference; there is no package-level default instance.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

func (c Config) withDefaults() Config {
	out := c
	if out.TTL <= 0 {
		out.TTL = 30 * time.Second
	}
	if out.MaxEntries <= 0 {
		out.MaxEntries = 10_000
	}
	return out
}

type entry[V any] struct {
	value    V
	expires  time.Time
	inserted time.Time
}

// Cache is a TTL cache with a max-entries bound. When full, the oldest
// insertion is evicted. Reads of expired entries miss and drop the entry.
type Cache[K comparable, V any] struct {
	mu     sync.Mutex
	cfg    Config
	items  map[K]entry[V]
	clock  func() time.Time
	closed bool
}

func New[K comparable, V any](cfg Config) *Cache[K, V] {
	cfg = cfg.withDefaults()
	return &Cache[K, V]{
		cfg:   cfg,
		items: make(map[K]entry[V], cfg.MaxEntries),
		clock: time.Now,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return zero, false
	}
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.clock().After(e.expires) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	now := c.clock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.items[key] = entry[V]{value: value, expires: now.Add(c.cfg.TTL), inserted: now}
}

// Invalidate removes a single key. Writers call this after mutating the
// backing store so readers never serve a stale value for the full TTL.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len reports the current entry count, expired entries included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close drops all entries and rejects further use.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = nil
}

func (c *Cache[K, V]) evictOldestLocked() {
	var oldestKey K
	var oldest time.Time
	first := true
	for k, e := range c.items {
		if first || e.inserted.Before(oldest) {
			oldestKey = k
			oldest = e.inserted
			first = false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
