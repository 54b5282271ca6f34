package reporting

import (
	"context"
	"sync"
	"time"

	"rez-ledger/internal/ledger"
	"rez-ledger/internal/webhook"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu      sync.Mutex
	entries []ledger.Entry
	events  []webhook.Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) AddEntry(e ledger.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *MemoryRepo) AddWebhookEvent(e webhook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *MemoryRepo) ListEntries(ctx context.Context, from, to time.Time, userID string) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ledger.Entry
	for _, e := range r.entries {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) ListWebhookEvents(ctx context.Context, from, to time.Time, provider string) ([]webhook.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []webhook.Event
	for _, e := range r.events {
		if e.ReceivedAt.Before(from) || !e.ReceivedAt.Before(to) {
			continue
		}
		if provider != "" && e.Provider != provider {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
