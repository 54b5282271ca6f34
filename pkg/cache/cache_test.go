package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](Config{TTL: time.Minute, MaxEntries: 4})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with 1, got %v %v", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[string, int](Config{TTL: time.Minute, MaxEntries: 4})
	defer c.Close()

	now := time.Now()
	c.clock = func() time.Time { return now }
	c.Set("a", 1)

	c.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c := New[string, int](Config{TTL: time.Minute, MaxEntries: 2})
	defer c.Close()

	now := time.Now()
	c.clock = func() time.Time { return now }
	c.Set("a", 1)
	c.clock = func() time.Time { return now.Add(time.Second) }
	c.Set("b", 2)
	c.clock = func() time.Time { return now.Add(2 * time.Second) }
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b retained")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected c retained")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string, int](Config{})
	defer c.Close()

	c.Set("a", 1)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected invalidated entry to miss")
	}
}

func TestCache_CloseRejectsUse(t *testing.T) {
	c := New[string, int](Config{})
	c.Set("a", 1)
	c.Close()

	c.Set("b", 2)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected no reads after close")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected no writes after close")
	}
}
