package webhook

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("webhook event not found")
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrInvalidPayload  = errors.New("invalid webhook payload")
)

// Store persists received events and their processing state.
//
// Status writes are guarded transitions: an update whose precondition no
// longer holds (the event moved on, or another worker claimed it) returns
// false rather than clobbering state, so terminal statuses can never be
// overwritten.
type Store interface {
	// Insert records a newly received event in status pending. When the
	// (provider, event_id) pair already exists, Insert returns the existing
	// event with duplicate=true and writes nothing; the check-and-insert is
	// atomic under concurrency.
	Insert(ctx context.Context, e Event) (Event, bool, error)

	Get(ctx context.Context, provider, eventID string) (Event, error)

	// Claim moves a pending or retry-due failed event to processing and
	// increments Attempts. It returns false when the event is not claimable.
	Claim(ctx context.Context, id string, now time.Time) (Event, bool, error)

	// MarkSuccess/MarkDuplicate/MarkDeadLetter finish a processing event.
	MarkSuccess(ctx context.Context, id string, now time.Time) (bool, error)
	MarkDuplicate(ctx context.Context, id string, now time.Time) (bool, error)
	MarkDeadLetter(ctx context.Context, id, lastError string, now time.Time) (bool, error)

	// MarkFailed moves a processing event back to failed with a retry
	// schedule.
	MarkFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time, now time.Time) (bool, error)

	// ListDue returns pending events and failed events whose retry time has
	// passed, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Event, error)

	// ListStuck returns events sitting in processing since before cutoff,
	// which indicates a worker died mid-flight.
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)
}
