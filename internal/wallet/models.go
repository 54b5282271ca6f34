package wallet

import "time"

// Coin buckets. Every coin in a wallet lives in exactly one named bucket;
// the available balance is always the sum of all buckets.
const (
	BucketPrimary     = "primary"
	BucketPromotional = "promotional"
	BucketCashback    = "cashback"
)

// Snapshot is the fast-read materialized balance for one user.
//
// Invariant: Available equals the ledger-derived balance within epsilon at
// all times except the brief window between a ledger append and its
// projection. Only atomic delta operations and the reconciliation sweeper
// mutate it; there is no blind field overwrite path.
type Snapshot struct {
	UserID string `json:"user_id"`

	// Available is the spendable balance in coins.
	Available int64 `json:"available"`
	// Total is the lifetime credited amount.
	Total int64 `json:"total"`
	// Pending is reserved for in-flight settlement flows; moved only by
	// explicit correction entries.
	Pending  int64 `json:"pending"`
	Cashback int64 `json:"cashback"`

	Buckets []BucketBalance `json:"buckets"`

	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type BucketBalance struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// BucketSum returns the sum of all bucket amounts. It must equal Available.
func (s Snapshot) BucketSum() int64 {
	var sum int64
	for _, b := range s.Buckets {
		sum += b.Amount
	}
	return sum
}

func (s Snapshot) Bucket(name string) int64 {
	for _, b := range s.Buckets {
		if b.Name == name {
			return b.Amount
		}
	}
	return 0
}

func IsKnownBucket(name string) bool {
	switch name {
	case BucketPrimary, BucketPromotional, BucketCashback:
		return true
	default:
		return false
	}
}
