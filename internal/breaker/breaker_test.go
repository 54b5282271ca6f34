package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	b := New(Config{FailureThreshold: threshold, ResetTimeout: reset})
	now := time.Unix(1700000000, 0)
	b.clock = func() time.Time { return now }
	return b, &now
}

func failCall(ctx context.Context) error { return errBoom }
func okCall(ctx context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failCall); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: expected call error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Fails fast: the call function must not run.
	called := false
	err := b.Do(ctx, func(ctx context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatalf("expected no call attempt while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failCall)
	_ = b.Do(ctx, failCall)
	_ = b.Do(ctx, okCall)
	_ = b.Do(ctx, failCall)
	_ = b.Do(ctx, failCall)

	if b.State() != StateClosed {
		t.Fatalf("expected closed after non-consecutive failures, got %v", b.State())
	}
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failCall)
	_ = b.Do(ctx, failCall)
	if b.State() != StateOpen {
		t.Fatalf("expected open")
	}

	*now = now.Add(61 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after reset timeout")
	}

	if err := b.Do(ctx, okCall); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after trial success, got %v", b.State())
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failCall)
	_ = b.Do(ctx, failCall)
	*now = now.Add(61 * time.Second)

	if err := b.Do(ctx, failCall); !errors.Is(err, errBoom) {
		t.Fatalf("expected call error, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after trial failure, got %v", b.State())
	}

	// The failure time was refreshed: still open before a fresh timeout.
	*now = now.Add(30 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("expected open until a fresh reset timeout elapses")
	}
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failCall)
	*now = now.Add(2 * time.Minute)

	// First admit takes the trial slot.
	if err := b.admit(); err != nil {
		t.Fatalf("expected trial admitted, got %v", err)
	}
	// A concurrent second call must fail fast.
	if err := b.admit(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected second concurrent trial rejected, got %v", err)
	}
	b.record(true)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after trial success")
	}
}
