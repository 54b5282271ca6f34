package reconcile

import "time"

// DriftRecord documents one detected divergence between the ledger-derived
// balance and the wallet projection. Records are kept even when the repair
// succeeds; recurring drift on the same user is an investigation signal.
type DriftRecord struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Expected is the authoritative ledger sum, Observed the projected
	// available balance at detection time.
	Expected int64 `json:"expected" db:"expected"`
	Observed int64 `json:"observed" db:"observed"`
	Delta    int64 `json:"delta" db:"delta"`

	// Repaired is false when the optimistic swap lost to a concurrent
	// balance change; the next sweep retries.
	Repaired bool `json:"repaired" db:"repaired"`

	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
}

// Summary reports one full sweep.
type Summary struct {
	Scanned  int           `json:"scanned"`
	Drifts   int           `json:"drifts"`
	Repaired int           `json:"repaired"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
