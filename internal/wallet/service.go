package wallet

import (
	"context"
	"log/slog"
	"time"

	"rez-ledger/pkg/cache"
)

// Service fronts the balance projection with a short-TTL read cache.
//
// The cache only ever serves Get traffic; every write path invalidates the
// entry, so a stale read is bounded by the TTL and never feeds back into a
// balance computation.
type Service struct {
	store Store
	cache *cache.Cache[string, Snapshot]
	log   *slog.Logger
	clock func() time.Time
}

func NewService(store Store, balanceCache *cache.Cache[string, Snapshot], log *slog.Logger) *Service {
	return &Service{
		store: store,
		cache: balanceCache,
		log:   log,
		clock: time.Now,
	}
}

func (s *Service) CreateWallet(ctx context.Context, userID string) (Snapshot, error) {
	snap, err := s.store.Create(ctx, userID, s.clock().UTC())
	if err != nil {
		return Snapshot{}, err
	}
	s.invalidate(userID)
	return snap, nil
}

// GetBalance reads through the cache. It never repairs or mutates the
// projection; reconciliation is the sweeper's job.
func (s *Service) GetBalance(ctx context.Context, userID string) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(userID); ok {
			return snap, nil
		}
	}
	snap, err := s.store.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if s.cache != nil {
		s.cache.Set(userID, snap)
	}
	return snap, nil
}

// Inspect reads the stored snapshot directly, bypassing the cache. The
// reconciliation sweeper uses it so a fresh cache entry can never mask
// drift.
func (s *Service) Inspect(ctx context.Context, userID string) (Snapshot, error) {
	return s.store.Get(ctx, userID)
}

// ApplyDelta applies one atomic bucket delta and drops the cached snapshot.
func (s *Service) ApplyDelta(ctx context.Context, userID, bucket string, delta int64) (Snapshot, error) {
	snap, err := s.store.ApplyDelta(ctx, userID, bucket, delta, s.clock().UTC())
	if err != nil {
		return Snapshot{}, err
	}
	s.invalidate(userID)
	return snap, nil
}

// Restore hands back coins taken by a decrement whose entry never committed.
// Unlike a positive ApplyDelta it does not raise Total.
func (s *Service) Restore(ctx context.Context, userID, bucket string, amount int64) (Snapshot, error) {
	snap, err := s.store.Restore(ctx, userID, bucket, amount, s.clock().UTC())
	if err != nil {
		return Snapshot{}, err
	}
	s.invalidate(userID)
	return snap, nil
}

// RepairAvailable is the sweeper's optimistic write: it moves available from
// expected to target only if the stored value still equals expected.
func (s *Service) RepairAvailable(ctx context.Context, userID string, expected, target int64) (bool, error) {
	swapped, err := s.store.CompareAndSwapAvailable(ctx, userID, expected, target, s.clock().UTC())
	if err != nil {
		return false, err
	}
	if swapped {
		s.log.InfoContext(ctx, "wallet balance repaired",
			slog.String("user_id", userID),
			slog.Int64("expected", expected),
			slog.Int64("target", target),
		)
		s.invalidate(userID)
	}
	return swapped, nil
}

func (s *Service) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
