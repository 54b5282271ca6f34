package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelay_GrowsExponentiallyAndCaps(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 8 * time.Second, JitterFraction: 0, MaxAttempts: 10}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second}, // capped
		{9, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterFraction: 0.2, MaxAttempts: 3}

	for i := 0; i < 200; i++ {
		d := p.Delay(2) // base 2s, jitter ±400ms
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}
}

func TestDo_StopsAfterBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFraction: 0, PerTryTimeout: time.Second}

	calls := 0
	errTransient := errors.New("transient")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error surfaced, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDo_SucceedsMidway(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFraction: 0, PerTryTimeout: time.Second}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDo_PermanentErrorShortCircuits(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFraction: 0, PerTryTimeout: time.Second}

	calls := 0
	errBad := errors.New("bad payload")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errBad)
	})
	if !errors.Is(err, errBad) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt for permanent error, got %d", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, JitterFraction: 0, PerTryTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(errors.New("x")) {
		t.Fatalf("plain error should not be permanent")
	}
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Fatalf("wrapped error should be permanent")
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
}
