package ledger

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrVelocityLimited = errors.New("velocity limit exceeded")
)

// Store is the persistence contract for the append-only ledger.
type Store interface {
	// Insert appends an entry. When the entry carries an idempotency key and
	// a row with the same (source, idempotency_key) already exists, Insert
	// returns that prior row with duplicate=true and writes nothing. The
	// check-and-insert must be atomic under concurrency: exactly one of N
	// racing inserts with the same key wins.
	Insert(ctx context.Context, e Entry) (Entry, bool, error)

	// SumBalance returns the signed sum of all entries for the user. This is
	// the authoritative balance the wallet projection is reconciled against.
	SumBalance(ctx context.Context, userID string) (int64, error)

	// SumBucket is SumBalance restricted to one bucket.
	SumBucket(ctx context.Context, userID, bucket string) (int64, error)

	// History lists the user's entries newest first.
	History(ctx context.Context, userID string, limit, offset int) ([]Entry, error)

	// ListUserIDs pages over the distinct users present in the ledger, in
	// ascending order, returning user IDs strictly greater than afterUserID.
	ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error)
}
