package webhook

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following table exists:
//
//   webhook_events (
//     id uuid primary key,
//     provider text not null,
//     event_id text not null,
//     user_id text not null,
//     direction text not null,
//     amount bigint not null,
//     bucket text not null,
//     status text not null,
//     attempts int not null default 0,
//     next_retry_at timestamptz,
//     last_error text not null default '',
//     payload jsonb,
//     payload_hash text not null default '',
//     received_at timestamptz not null,
//     updated_at timestamptz not null,
//     unique (provider, event_id)
//   )
//
//   create index webhook_events_due
//     on webhook_events (status, next_retry_at);

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `
id, provider, event_id, user_id, direction, amount, bucket, status, attempts,
next_retry_at, last_error, COALESCE(payload::text, ''), payload_hash, received_at, updated_at`

func scanEvent(row interface {
	Scan(dest ...any) error
}) (Event, error) {
	var e Event
	var nextRetry sql.NullTime
	err := row.Scan(
		&e.ID, &e.Provider, &e.EventID, &e.UserID, &e.Direction, &e.Amount, &e.Bucket,
		&e.Status, &e.Attempts, &nextRetry, &e.LastError, &e.Payload,
		&e.PayloadHash, &e.ReceivedAt, &e.UpdatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		e.NextRetryAt = &t
	}
	return e, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e Event) (Event, bool, error) {
	const q = `
INSERT INTO webhook_events (
  id, provider, event_id, user_id, direction, amount, bucket, status, attempts,
  last_error, payload, payload_hash, received_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '', NULLIF($9, '')::jsonb, $10, $11, $11)
ON CONFLICT (provider, event_id) DO NOTHING
RETURNING id
`
	var insertedID string
	err := s.db.QueryRowContext(ctx, q,
		e.ID, e.Provider, e.EventID, e.UserID, e.Direction, e.Amount, e.Bucket,
		StatusPending, e.Payload, e.PayloadHash, e.ReceivedAt,
	).Scan(&insertedID)
	if err == nil {
		e.Status = StatusPending
		e.UpdatedAt = e.ReceivedAt
		return e, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, err
	}

	prior, err := s.Get(ctx, e.Provider, e.EventID)
	if err != nil {
		return Event{}, false, err
	}
	return prior, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, provider, eventID string) (Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM webhook_events WHERE provider = $1 AND event_id = $2`
	e, err := scanEvent(s.db.QueryRowContext(ctx, q, provider, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) Claim(ctx context.Context, id string, now time.Time) (Event, bool, error) {
	const q = `
UPDATE webhook_events
SET status = $2, attempts = attempts + 1, updated_at = $3
WHERE id = $1
  AND (status = 'pending' OR (status = 'failed' AND (next_retry_at IS NULL OR next_retry_at <= $3)))
RETURNING ` + eventColumns
	e, err := scanEvent(s.db.QueryRowContext(ctx, q, id, StatusProcessing, now))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	return e, true, nil
}

func (s *PostgresStore) MarkSuccess(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.finish(ctx, id, StatusSuccess, "", now)
}

func (s *PostgresStore) MarkDuplicate(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.finish(ctx, id, StatusDuplicate, "", now)
}

func (s *PostgresStore) MarkDeadLetter(ctx context.Context, id, lastError string, now time.Time) (bool, error) {
	return s.finish(ctx, id, StatusDeadLetter, lastError, now)
}

func (s *PostgresStore) finish(ctx context.Context, id string, status Status, lastError string, now time.Time) (bool, error) {
	const q = `
UPDATE webhook_events
SET status = $2, last_error = $3, next_retry_at = NULL, updated_at = $4
WHERE id = $1 AND status = 'processing'
`
	res, err := s.db.ExecContext(ctx, q, id, status, lastError, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, lastError string, nextRetryAt time.Time, now time.Time) (bool, error) {
	const q = `
UPDATE webhook_events
SET status = $2, last_error = $3, next_retry_at = $4, updated_at = $5
WHERE id = $1 AND status = 'processing'
`
	res, err := s.db.ExecContext(ctx, q, id, StatusFailed, lastError, nextRetryAt, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	const q = `
SELECT ` + eventColumns + `
FROM webhook_events
WHERE status = 'pending'
   OR (status = 'failed' AND (next_retry_at IS NULL OR next_retry_at <= $1))
ORDER BY received_at
LIMIT $2
`
	return s.list(ctx, q, now, limit)
}

func (s *PostgresStore) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	const q = `
SELECT ` + eventColumns + `
FROM webhook_events
WHERE status = 'processing' AND updated_at < $1
ORDER BY updated_at
LIMIT $2
`
	return s.list(ctx, q, cutoff, limit)
}

func (s *PostgresStore) list(ctx context.Context, q string, t time.Time, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, t, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
