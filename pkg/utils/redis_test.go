package utils

import (
	"context"
	"testing"
	"time"
)

func TestVelocityScriptCompiles(t *testing.T) {
	// Compile-time smoke test: script should be initialized.
	if velocityScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestAllowVelocity_RejectsBadInput(t *testing.T) {
	ctx := context.Background()

	if _, err := AllowVelocity(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestSetIfAbsent_RejectsBadInput(t *testing.T) {
	ctx := context.Background()

	if _, err := SetIfAbsent(ctx, nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
