package webhook

import (
	"errors"
	"testing"
	"time"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event_id":"evt-1","user_id":"u1","amount":100}`)

	header := SignBody("topsecret", body, now)
	if err := VerifySignature("topsecret", header, body, now, 5*time.Minute); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Skew inside the window is fine.
	if err := VerifySignature("topsecret", header, body, now.Add(4*time.Minute), 5*time.Minute); err != nil {
		t.Fatalf("verify with skew: %v", err)
	}
}

func TestVerifySignature_RejectsTampering(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event_id":"evt-1","user_id":"u1","amount":100}`)
	header := SignBody("topsecret", body, now)

	tampered := []byte(`{"event_id":"evt-1","user_id":"u1","amount":999}`)
	if err := VerifySignature("topsecret", header, tampered, now, 5*time.Minute); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for body change, got %v", err)
	}
	if err := VerifySignature("wrongsecret", header, body, now, 5*time.Minute); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}
}

func TestVerifySignature_ReplayWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	header := SignBody("s", body, now)

	if err := VerifySignature("s", header, body, now.Add(6*time.Minute), 5*time.Minute); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected for old timestamp, got %v", err)
	}
	// Timestamps from the future are just as suspicious.
	if err := VerifySignature("s", header, body, now.Add(-6*time.Minute), 5*time.Minute); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected for future timestamp, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, header := range []string{
		"",
		"v1=abc",
		"t=1234",
		"t=notanumber,v1=abc",
		"t=1234,v1=zzzz",
	} {
		if err := VerifySignature("s", header, []byte(`{}`), now, 5*time.Minute); err == nil {
			t.Fatalf("header %q: expected error", header)
		}
	}
}
