package auth

import "github.com/golang-jwt/jwt/v5"

// Role names accepted by this service. Callers are other backend subsystems
// (order, achievement, referral, game services) holding service tokens, and
// operators holding admin tokens.
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

// Claims are the only supported JWT claims shape for this service.
// SubjectID identifies the calling service or operator, not a wallet owner;
// wallet user ids always arrive in request payloads.
type Claims struct {
	jwt.RegisteredClaims

	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

func isValidRole(role string) bool {
	switch role {
	case RoleService, RoleAdmin:
		return true
	default:
		return false
	}
}
