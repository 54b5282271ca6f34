package webhook

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*Event
	byKey  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*Event),
		byKey:  make(map[string]string),
	}
}

func eventKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (s *MemoryStore) Insert(ctx context.Context, e Event) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[eventKey(e.Provider, e.EventID)]; ok {
		return *s.events[id], true, nil
	}
	e.Status = StatusPending
	e.Attempts = 0
	e.UpdatedAt = e.ReceivedAt
	stored := e
	s.events[e.ID] = &stored
	s.byKey[eventKey(e.Provider, e.EventID)] = e.ID
	return stored, false, nil
}

func (s *MemoryStore) Get(ctx context.Context, provider, eventID string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[eventKey(provider, eventID)]
	if !ok {
		return Event{}, ErrNotFound
	}
	return *s.events[id], nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string, now time.Time) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return Event{}, false, nil
	}
	claimable := e.Status == StatusPending ||
		(e.Status == StatusFailed && (e.NextRetryAt == nil || !e.NextRetryAt.After(now)))
	if !claimable {
		return Event{}, false, nil
	}
	e.Status = StatusProcessing
	e.Attempts++
	e.UpdatedAt = now
	return *e, true, nil
}

func (s *MemoryStore) MarkSuccess(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.finish(id, StatusSuccess, "", now)
}

func (s *MemoryStore) MarkDuplicate(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.finish(id, StatusDuplicate, "", now)
}

func (s *MemoryStore) MarkDeadLetter(ctx context.Context, id, lastError string, now time.Time) (bool, error) {
	return s.finish(id, StatusDeadLetter, lastError, now)
}

func (s *MemoryStore) finish(id string, status Status, lastError string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.Status != StatusProcessing {
		return false, nil
	}
	e.Status = status
	e.LastError = lastError
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.Status != StatusProcessing {
		return false, nil
	}
	e.Status = StatusFailed
	e.LastError = lastError
	t := nextRetryAt
	e.NextRetryAt = &t
	e.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		due := e.Status == StatusPending ||
			(e.Status == StatusFailed && (e.NextRetryAt == nil || !e.NextRetryAt.After(now)))
		if due {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.Status == StatusProcessing && e.UpdatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
