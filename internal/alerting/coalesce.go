package alerting

import (
	"context"
	"time"

	"rez-ledger/pkg/cache"
	"rez-ledger/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Coalescer decides whether an alert fingerprint is the first within its
// window. Repeated identical alerts inside the window are suppressed.
type Coalescer interface {
	FirstInWindow(ctx context.Context, fingerprint string, window time.Duration) (bool, error)
}

// RedisCoalescer coalesces across processes via SET NX with TTL.
type RedisCoalescer struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCoalescer(rdb *redis.Client) *RedisCoalescer {
	return &RedisCoalescer{rdb: rdb, prefix: "alert:coalesce:"}
}

func (c *RedisCoalescer) FirstInWindow(ctx context.Context, fingerprint string, window time.Duration) (bool, error) {
	return utils.SetIfAbsent(ctx, c.rdb, c.prefix+fingerprint, window)
}

// MemoryCoalescer is the single-process fallback used in tests and when
// redis is unavailable at boot. The window is fixed at construction.
type MemoryCoalescer struct {
	seen *cache.Cache[string, struct{}]
}

func NewMemoryCoalescer(window time.Duration) *MemoryCoalescer {
	return &MemoryCoalescer{seen: cache.New[string, struct{}](cache.Config{TTL: window, MaxEntries: 4096})}
}

func (c *MemoryCoalescer) FirstInWindow(ctx context.Context, fingerprint string, window time.Duration) (bool, error) {
	if _, ok := c.seen.Get(fingerprint); ok {
		return false, nil
	}
	c.seen.Set(fingerprint, struct{}{})
	return true, nil
}
