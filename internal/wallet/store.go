package wallet

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// Store is the persistence contract for the balance projection.
//
// Implementations must make ApplyDelta a single atomic conditional
// increment/decrement: never read-compute-write, so concurrent deltas on the
// same user cannot lose updates. CompareAndSwapAvailable exists solely for
// the reconciliation sweeper's optimistic repair.
type Store interface {
	// Create initializes a zero-balance wallet. Creating an existing wallet
	// returns the current snapshot unchanged.
	Create(ctx context.Context, userID string, now time.Time) (Snapshot, error)

	Get(ctx context.Context, userID string) (Snapshot, error)

	// ApplyDelta moves the named bucket and the aggregate available balance
	// by delta in one atomic unit. A negative delta applies only if both the
	// resulting available and the resulting bucket stay >= 0; otherwise
	// ErrInsufficientBalance with no partial change. Positive deltas also
	// raise Total; deltas on the cashback bucket mirror into Cashback.
	ApplyDelta(ctx context.Context, userID, bucket string, delta int64, now time.Time) (Snapshot, error)

	// Restore hands back coins removed by a decrement whose entry was never
	// (or already) written. It raises available and the bucket like a
	// positive ApplyDelta but leaves Total untouched: returned coins are not
	// a new earn.
	Restore(ctx context.Context, userID, bucket string, amount int64, now time.Time) (Snapshot, error)

	// CompareAndSwapAvailable repairs available from expected to target,
	// adjusting the primary bucket by the same difference to keep the
	// bucket-sum invariant. It returns false without writing when the stored
	// available no longer equals expected (the balance moved concurrently).
	// On success it stamps LastReconciledAt.
	CompareAndSwapAvailable(ctx context.Context, userID string, expected, target int64, now time.Time) (bool, error)
}
