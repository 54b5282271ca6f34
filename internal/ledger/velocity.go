package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rez-ledger/pkg/utils"
)

// VelocityGuard rate-limits debits per user over a sliding window.
type VelocityGuard interface {
	// AllowDebit reports whether the user may perform one more debit inside
	// the current window. A refusal consumes no budget.
	AllowDebit(ctx context.Context, userID string) (bool, error)
}

// RedisVelocityGuard counts debits in Redis so the limit holds across
// processes.
type RedisVelocityGuard struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisVelocityGuard(rdb *redis.Client, limit int, window time.Duration) *RedisVelocityGuard {
	return &RedisVelocityGuard{rdb: rdb, limit: limit, window: window}
}

func (g *RedisVelocityGuard) AllowDebit(ctx context.Context, userID string) (bool, error) {
	return utils.AllowVelocity(ctx, g.rdb, "velocity:debit:"+userID, g.limit, g.window)
}

// MemoryVelocityGuard is a single-process guard for tests and local runs.
type MemoryVelocityGuard struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  func() time.Time

	counts map[string]*windowCount
}

type windowCount struct {
	start time.Time
	n     int
}

func NewMemoryVelocityGuard(limit int, window time.Duration) *MemoryVelocityGuard {
	return &MemoryVelocityGuard{
		limit:  limit,
		window: window,
		clock:  time.Now,
		counts: make(map[string]*windowCount),
	}
}

func (g *MemoryVelocityGuard) AllowDebit(ctx context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	w, ok := g.counts[userID]
	if !ok || now.Sub(w.start) >= g.window {
		g.counts[userID] = &windowCount{start: now, n: 1}
		return true, nil
	}
	if w.n >= g.limit {
		return false, nil
	}
	w.n++
	return true, nil
}
