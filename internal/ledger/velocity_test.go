package ledger

import (
	"context"
	"testing"
	"time"
)

func TestMemoryVelocityGuard_WindowResets(t *testing.T) {
	g := NewMemoryVelocityGuard(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.clock = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := g.AllowDebit(ctx, "u1")
		if err != nil || !ok {
			t.Fatalf("debit %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := g.AllowDebit(ctx, "u1")
	if err != nil {
		t.Fatalf("blocked debit: %v", err)
	}
	if ok {
		t.Fatalf("expected third debit in window to be refused")
	}

	now = now.Add(time.Minute)
	ok, err = g.AllowDebit(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("debit after window: ok=%v err=%v", ok, err)
	}
}
