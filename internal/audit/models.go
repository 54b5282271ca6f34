package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorID is the authenticated subject causing the event.
	ActorID string `json:"actor_id,omitempty" db:"actor_id"`
	// ActorRole records the role at the time of the action.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	// Prefer X-Forwarded-For processing at the edge; store the resolved client IP here.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// TargetUserID is the wallet owner affected by the action (if applicable).
	TargetUserID string `json:"target_user_id,omitempty" db:"target_user_id"`
	// EntryID links to the ledger entry created by the action (if applicable).
	EntryID string `json:"entry_id,omitempty" db:"entry_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCorrection    EventType = "admin_correction"
	EventTypeReconcileRun  EventType = "reconcile_run"
	EventTypeAlertResolved EventType = "alert_resolved"
)
