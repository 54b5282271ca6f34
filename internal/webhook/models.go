package webhook

import "time"

// Event is one received provider callback. The raw payload is retained
// verbatim for audit and replay-debugging.
type Event struct {
	ID       string `json:"id" db:"id"`
	Provider string `json:"provider" db:"provider"`
	// EventID is the provider's own identifier; (provider, event_id) is
	// unique.
	EventID string `json:"event_id" db:"event_id"`

	UserID    string `json:"user_id" db:"user_id"`
	Direction string `json:"direction" db:"direction"`
	Amount    int64  `json:"amount" db:"amount"`
	Bucket    string `json:"bucket" db:"bucket"`

	Status Status `json:"status" db:"status"`

	// Attempts counts processing attempts so far.
	Attempts    int        `json:"attempts" db:"attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastError   string     `json:"last_error,omitempty" db:"last_error"`

	Payload string `json:"payload,omitempty" db:"payload"`
	// PayloadHash is the hex sha256 of the raw body as received, fixed at
	// intake so later payload edits are detectable.
	PayloadHash string `json:"payload_hash" db:"payload_hash"`

	ReceivedAt time.Time `json:"received_at" db:"received_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Status is the processing state machine. Transitions only move forward:
//
//	pending -> processing -> success
//	                      -> duplicate
//	                      -> failed -> processing (retry)
//	                      -> dead_letter
//
// success, duplicate and dead_letter are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusDuplicate  Status = "duplicate"
	StatusDeadLetter Status = "dead_letter"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusDuplicate, StatusDeadLetter:
		return true
	default:
		return false
	}
}
