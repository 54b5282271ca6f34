package ledger

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: This repository assumes the following table exists:
//
//   ledger_entries (
//     id uuid primary key,
//     user_id text not null,
//     direction text not null,
//     amount bigint not null check (amount > 0),
//     bucket text not null,
//     source text not null,
//     idempotency_key text,
//     metadata jsonb,
//     created_at timestamptz not null
//   )
//
//   -- duplicate suppression for retryable sources:
//   create unique index ledger_entries_source_idem_key
//     on ledger_entries (source, idempotency_key)
//     where idempotency_key is not null;
//
//   create index ledger_entries_user_created
//     on ledger_entries (user_id, created_at desc);

// PostgresStore implements Store on Postgres. Idempotency is delegated to
// the partial unique index: insert first, and on conflict fetch the winning
// row. No advisory locks, no serializable transactions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, e Entry) (Entry, bool, error) {
	const q = `
INSERT INTO ledger_entries (
  id, user_id, direction, amount, bucket, source, idempotency_key, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::jsonb, $9)
ON CONFLICT (source, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
RETURNING id
`
	var insertedID string
	err := s.db.QueryRowContext(ctx, q,
		e.ID, e.UserID, e.Direction, e.Amount, e.Bucket, e.Source,
		nullString(e.IdempotencyKey), e.Metadata, e.CreatedAt,
	).Scan(&insertedID)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, err
	}

	// Conflict: an earlier entry owns this (source, idempotency_key).
	prior, err := s.findByIdempotency(ctx, e.Source, e.IdempotencyKey)
	if err != nil {
		return Entry{}, false, err
	}
	return prior, true, nil
}

func (s *PostgresStore) findByIdempotency(ctx context.Context, source Source, key string) (Entry, error) {
	const q = `
SELECT id, user_id, direction, amount, bucket, source,
       COALESCE(idempotency_key, ''), COALESCE(metadata::text, ''), created_at
FROM ledger_entries
WHERE source = $1 AND idempotency_key = $2
`
	var e Entry
	err := s.db.QueryRowContext(ctx, q, source, key).Scan(
		&e.ID, &e.UserID, &e.Direction, &e.Amount, &e.Bucket, &e.Source,
		&e.IdempotencyKey, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *PostgresStore) SumBalance(ctx context.Context, userID string) (int64, error) {
	const q = `
SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
FROM ledger_entries
WHERE user_id = $1
`
	var sum int64
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *PostgresStore) SumBucket(ctx context.Context, userID, bucket string) (int64, error) {
	const q = `
SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
FROM ledger_entries
WHERE user_id = $1 AND bucket = $2
`
	var sum int64
	if err := s.db.QueryRowContext(ctx, q, userID, bucket).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *PostgresStore) History(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	const q = `
SELECT id, user_id, direction, amount, bucket, source,
       COALESCE(idempotency_key, ''), COALESCE(metadata::text, ''), created_at
FROM ledger_entries
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Direction, &e.Amount, &e.Bucket, &e.Source,
			&e.IdempotencyKey, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	const q = `
SELECT DISTINCT user_id
FROM ledger_entries
WHERE user_id > $1
ORDER BY user_id
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, afterUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
