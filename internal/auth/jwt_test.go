package auth

import (
	"testing"
	"time"

	"rez-ledger/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "order-service", RoleService)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SubjectID != "order-service" || claims.Role != RoleService {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Past the TTL plus the 30s leeway.
	if _, err := m.Verify(tok, now.Add(5*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	if _, err := m.Issue(time.Now(), "ops", "superuser"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewManager(config.AuthConfig{JWTSecret: "secret-a", AccessTokenTTL: time.Minute})
	b, _ := NewManager(config.AuthConfig{JWTSecret: "secret-b", AccessTokenTTL: time.Minute})
	now := time.Now()
	tok, err := a.Issue(now, "ops", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}
