package reporting

import (
	"context"
	"database/sql"
	"time"

	"rez-ledger/internal/ledger"
	"rez-ledger/internal/webhook"
)

// PostgresRepo reads the same tables the ledger and webhook repositories
// write. It owns no schema of its own.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListEntries(ctx context.Context, from, to time.Time, userID string) ([]ledger.Entry, error) {
	const q = `
SELECT id, user_id, direction, amount, bucket, source,
       COALESCE(idempotency_key, ''), COALESCE(metadata::text, ''), created_at
FROM ledger_entries
WHERE created_at >= $1 AND created_at < $2
  AND ($3 = '' OR user_id = $3)
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
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

func (r *PostgresRepo) ListWebhookEvents(ctx context.Context, from, to time.Time, provider string) ([]webhook.Event, error) {
	const q = `
SELECT id, provider, event_id, user_id, direction, amount, bucket, status, attempts,
       next_retry_at, last_error, COALESCE(payload::text, ''), received_at, updated_at
FROM webhook_events
WHERE received_at >= $1 AND received_at < $2
  AND ($3 = '' OR provider = $3)
ORDER BY received_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []webhook.Event
	for rows.Next() {
		var e webhook.Event
		var nextRetry sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.Provider, &e.EventID, &e.UserID, &e.Direction, &e.Amount,
			&e.Bucket, &e.Status, &e.Attempts, &nextRetry, &e.LastError,
			&e.Payload, &e.ReceivedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if nextRetry.Valid {
			t := nextRetry.Time
			e.NextRetryAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
