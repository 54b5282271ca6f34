package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rez-ledger/pkg/utils"
)

// NOTE: This repository assumes the following tables exist:
//
//   wallets (
//     user_id text primary key,
//     available bigint not null default 0,
//     total bigint not null default 0,
//     pending bigint not null default 0,
//     cashback bigint not null default 0,
//     last_reconciled_at timestamptz,
//     created_at timestamptz not null,
//     updated_at timestamptz not null
//   )
//
//   wallet_buckets (
//     user_id text not null,
//     bucket text not null,
//     amount bigint not null default 0,
//     primary key (user_id, bucket)
//   )

// PostgresStore implements Store on Postgres. All balance math happens in
// SQL so the database row is the synchronization point; no balance is ever
// computed in Go and written back.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, userID string, now time.Time) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO wallets (user_id, available, total, pending, cashback, created_at, updated_at)
VALUES ($1, 0, 0, 0, 0, $2, $2)
ON CONFLICT (user_id) DO NOTHING
`
	if _, err := s.db.ExecContext(ctx, q, userID, now); err != nil {
		return Snapshot{}, err
	}
	return s.Get(ctx, userID)
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrInvalidArgument
	}
	const q = `
SELECT user_id, available, total, pending, cashback, last_reconciled_at, created_at, updated_at
FROM wallets
WHERE user_id = $1
`
	var snap Snapshot
	var reconciled sql.NullTime
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&snap.UserID,
		&snap.Available,
		&snap.Total,
		&snap.Pending,
		&snap.Cashback,
		&reconciled,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	if reconciled.Valid {
		t := reconciled.Time
		snap.LastReconciledAt = &t
	}

	buckets, err := s.loadBuckets(ctx, s.db, userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Buckets = buckets
	return snap, nil
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, userID, bucket string, delta int64, now time.Time) (Snapshot, error) {
	if userID == "" || bucket == "" || delta == 0 {
		return Snapshot{}, ErrInvalidArgument
	}

	return s.shift(ctx, userID, bucket, delta, now, true)
}

func (s *PostgresStore) Restore(ctx context.Context, userID, bucket string, amount int64, now time.Time) (Snapshot, error) {
	if userID == "" || bucket == "" || amount <= 0 {
		return Snapshot{}, ErrInvalidArgument
	}
	return s.shift(ctx, userID, bucket, amount, now, false)
}

func (s *PostgresStore) shift(ctx context.Context, userID, bucket string, delta int64, now time.Time, earn bool) (Snapshot, error) {
	var out Snapshot
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		snap, err := applyAggregateDelta(ctx, tx, userID, bucket, delta, now, earn)
		if err != nil {
			return err
		}
		if err := applyBucketDelta(ctx, tx, userID, bucket, delta); err != nil {
			return err
		}
		buckets, err := s.loadBuckets(ctx, tx, userID)
		if err != nil {
			return err
		}
		snap.Buckets = buckets
		out = snap
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

func (s *PostgresStore) CompareAndSwapAvailable(ctx context.Context, userID string, expected, target int64, now time.Time) (bool, error) {
	if userID == "" {
		return false, ErrInvalidArgument
	}

	swapped := false
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE wallets
SET available = $3, last_reconciled_at = $4, updated_at = $4
WHERE user_id = $1 AND available = $2
`
		res, err := tx.ExecContext(ctx, q, userID, expected, target, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// The balance moved under us; the next sweep cycle retries.
			return nil
		}

		// Keep bucket-sum == available: the repair difference lands in the
		// primary bucket.
		const qb = `
INSERT INTO wallet_buckets (user_id, bucket, amount)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, bucket)
DO UPDATE SET amount = wallet_buckets.amount + EXCLUDED.amount
`
		if diff := target - expected; diff != 0 {
			if _, err := tx.ExecContext(ctx, qb, userID, BucketPrimary, diff); err != nil {
				return err
			}
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// applyAggregateDelta moves the wallet aggregates in one conditional UPDATE.
// The WHERE clause is the negative-balance guard: a debit that would push
// available below zero matches no row. Total only counts earns: restores
// pass earn=false so handed-back coins leave it alone.
func applyAggregateDelta(ctx context.Context, tx *sql.Tx, userID, bucket string, delta int64, now time.Time, earn bool) (Snapshot, error) {
	const q = `
UPDATE wallets
SET available = available + $2,
    total = total + CASE WHEN $5 AND $2 > 0 THEN $2 ELSE 0 END,
    cashback = cashback + CASE WHEN $3 = 'cashback' THEN $2 ELSE 0 END,
    updated_at = $4
WHERE user_id = $1 AND available + $2 >= 0
RETURNING user_id, available, total, pending, cashback, last_reconciled_at, created_at, updated_at
`
	var snap Snapshot
	var reconciled sql.NullTime
	err := tx.QueryRowContext(ctx, q, userID, delta, bucket, now, earn).Scan(
		&snap.UserID,
		&snap.Available,
		&snap.Total,
		&snap.Pending,
		&snap.Cashback,
		&reconciled,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, classifyDeltaMiss(ctx, tx, userID)
		}
		return Snapshot{}, err
	}
	if reconciled.Valid {
		t := reconciled.Time
		snap.LastReconciledAt = &t
	}
	return snap, nil
}

func applyBucketDelta(ctx context.Context, tx *sql.Tx, userID, bucket string, delta int64) error {
	if delta > 0 {
		const q = `
INSERT INTO wallet_buckets (user_id, bucket, amount)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, bucket)
DO UPDATE SET amount = wallet_buckets.amount + EXCLUDED.amount
`
		_, err := tx.ExecContext(ctx, q, userID, bucket, delta)
		return err
	}

	const q = `
UPDATE wallet_buckets
SET amount = amount + $3
WHERE user_id = $1 AND bucket = $2 AND amount + $3 >= 0
`
	res, err := tx.ExecContext(ctx, q, userID, bucket, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// classifyDeltaMiss distinguishes a missing wallet from an insufficient
// balance when the conditional update matched no row.
func classifyDeltaMiss(ctx context.Context, tx *sql.Tx, userID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM wallets WHERE user_id = $1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInsufficientBalance
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) loadBuckets(ctx context.Context, q queryer, userID string) ([]BucketBalance, error) {
	const query = `
SELECT bucket, amount
FROM wallet_buckets
WHERE user_id = $1
ORDER BY bucket
`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BucketBalance
	for rows.Next() {
		var b BucketBalance
		if err := rows.Scan(&b.Name, &b.Amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
