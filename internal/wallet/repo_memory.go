package wallet

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*memWallet
}

type memWallet struct {
	snap    Snapshot
	buckets map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*memWallet)}
}

func (s *MemoryStore) Create(ctx context.Context, userID string, now time.Time) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		w = &memWallet{
			snap: Snapshot{
				UserID:    userID,
				CreatedAt: now,
				UpdatedAt: now,
			},
			buckets: make(map[string]int64),
		}
		s.wallets[userID] = w
	}
	return w.snapshot(), nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return w.snapshot(), nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, userID, bucket string, delta int64, now time.Time) (Snapshot, error) {
	if userID == "" || bucket == "" || delta == 0 {
		return Snapshot{}, ErrInvalidArgument
	}
	return s.shift(userID, bucket, delta, now, true)
}

func (s *MemoryStore) Restore(ctx context.Context, userID, bucket string, amount int64, now time.Time) (Snapshot, error) {
	if userID == "" || bucket == "" || amount <= 0 {
		return Snapshot{}, ErrInvalidArgument
	}
	return s.shift(userID, bucket, amount, now, false)
}

func (s *MemoryStore) shift(userID, bucket string, delta int64, now time.Time, earn bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if delta < 0 && (w.snap.Available+delta < 0 || w.buckets[bucket]+delta < 0) {
		return Snapshot{}, ErrInsufficientBalance
	}

	w.snap.Available += delta
	w.buckets[bucket] += delta
	if earn && delta > 0 {
		w.snap.Total += delta
	}
	if bucket == BucketCashback {
		w.snap.Cashback += delta
	}
	w.snap.UpdatedAt = now
	return w.snapshot(), nil
}

func (s *MemoryStore) CompareAndSwapAvailable(ctx context.Context, userID string, expected, target int64, now time.Time) (bool, error) {
	if userID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return false, ErrNotFound
	}
	if w.snap.Available != expected {
		return false, nil
	}
	w.snap.Available = target
	w.buckets[BucketPrimary] += target - expected
	t := now
	w.snap.LastReconciledAt = &t
	w.snap.UpdatedAt = now
	return true, nil
}

func (w *memWallet) snapshot() Snapshot {
	snap := w.snap
	snap.Buckets = nil
	names := make([]string, 0, len(w.buckets))
	for name := range w.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Buckets = append(snap.Buckets, BucketBalance{Name: name, Amount: w.buckets[name]})
	}
	if snap.LastReconciledAt != nil {
		t := *snap.LastReconciledAt
		snap.LastReconciledAt = &t
	}
	return snap
}
