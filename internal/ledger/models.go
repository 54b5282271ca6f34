package ledger

import "time"

// Entry is an immutable append-only ledger row in coins (minor units).
// Rows are never updated or deleted; corrections are new entries.
//
// Money invariant: every balance change in the system MUST have a
// corresponding ledger entry. The ledger is the source of truth; the wallet
// projection is derived.
type Entry struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Direction Direction `json:"direction" db:"direction"`

	// Amount is always positive; Direction carries the sign.
	Amount int64  `json:"amount" db:"amount"`
	Bucket string `json:"bucket" db:"bucket"`

	// Source identifies the earn/burn surface that produced the entry.
	Source Source `json:"source" db:"source"`

	// IdempotencyKey is required for retryable sources. Uniqueness is
	// enforced per (source, idempotency_key).
	IdempotencyKey string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	// Metadata is optional JSON for audit/debug (stored as JSONB).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SignedAmount folds Direction into the amount: credits positive, debits
// negative.
func (e Entry) SignedAmount() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func IsValidDirection(d Direction) bool {
	return d == DirectionCredit || d == DirectionDebit
}

type Source string

const (
	SourceOrder           Source = "order"
	SourceAchievement     Source = "achievement"
	SourceReferral        Source = "referral"
	SourceGame            Source = "game"
	SourceWebhook         Source = "webhook"
	SourceAdminCorrection Source = "admin_correction"
	SourceMigration       Source = "migration"
)

func IsValidSource(s Source) bool {
	switch s {
	case SourceOrder, SourceAchievement, SourceReferral, SourceGame,
		SourceWebhook, SourceAdminCorrection, SourceMigration:
		return true
	default:
		return false
	}
}

// requiresIdempotencyKey reports whether entries from this source come off
// retryable pipelines and therefore must carry a key.
func requiresIdempotencyKey(s Source) bool {
	switch s {
	case SourceAchievement, SourceReferral, SourceGame, SourceWebhook:
		return true
	default:
		return false
	}
}
