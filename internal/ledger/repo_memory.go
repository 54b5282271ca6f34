package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local runs. It mirrors
// the Postgres store's idempotency semantics: the insert-or-fetch under the
// (source, idempotency_key) key is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	byKey   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]int)}
}

func idemKey(source Source, key string) string {
	return string(source) + "\x00" + key
}

func (s *MemoryStore) Insert(ctx context.Context, e Entry) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IdempotencyKey != "" {
		if i, ok := s.byKey[idemKey(e.Source, e.IdempotencyKey)]; ok {
			return s.entries[i], true, nil
		}
	}
	s.entries = append(s.entries, e)
	if e.IdempotencyKey != "" {
		s.byKey[idemKey(e.Source, e.IdempotencyKey)] = len(s.entries) - 1
	}
	return e, false, nil
}

func (s *MemoryStore) SumBalance(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID {
			sum += e.SignedAmount()
		}
	}
	return sum, nil
}

func (s *MemoryStore) SumBucket(ctx context.Context, userID, bucket string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID && e.Bucket == bucket {
			sum += e.SignedAmount()
		}
	}
	return sum, nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			all = append(all, e)
		}
	}
	// Newest first; insertion order breaks created-at ties.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		if e.UserID > afterUserID {
			seen[e.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns a copy of every entry, in insertion order.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
