package reconcile

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// DriftStore persists drift records.
type DriftStore interface {
	Insert(ctx context.Context, r DriftRecord) error

	// CountRecent counts the user's drift records detected since the cutoff.
	CountRecent(ctx context.Context, userID string, since time.Time) (int, error)

	// ListRecent returns the newest records across all users.
	ListRecent(ctx context.Context, limit int) ([]DriftRecord, error)
}

// NOTE: The Postgres store assumes the following table exists:
//
//   drift_records (
//     id uuid primary key,
//     user_id text not null,
//     expected bigint not null,
//     observed bigint not null,
//     delta bigint not null,
//     repaired boolean not null,
//     detected_at timestamptz not null
//   )
//
//   create index drift_records_user_detected
//     on drift_records (user_id, detected_at desc);

type PostgresDriftStore struct {
	db *sql.DB
}

func NewPostgresDriftStore(db *sql.DB) *PostgresDriftStore {
	return &PostgresDriftStore{db: db}
}

func (s *PostgresDriftStore) Insert(ctx context.Context, r DriftRecord) error {
	const q = `
INSERT INTO drift_records (id, user_id, expected, observed, delta, repaired, detected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := s.db.ExecContext(ctx, q, r.ID, r.UserID, r.Expected, r.Observed, r.Delta, r.Repaired, r.DetectedAt)
	return err
}

func (s *PostgresDriftStore) CountRecent(ctx context.Context, userID string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM drift_records WHERE user_id = $1 AND detected_at >= $2`
	var n int
	err := s.db.QueryRowContext(ctx, q, userID, since).Scan(&n)
	return n, err
}

func (s *PostgresDriftStore) ListRecent(ctx context.Context, limit int) ([]DriftRecord, error) {
	const q = `
SELECT id, user_id, expected, observed, delta, repaired, detected_at
FROM drift_records
ORDER BY detected_at DESC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriftRecord
	for rows.Next() {
		var r DriftRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Expected, &r.Observed, &r.Delta, &r.Repaired, &r.DetectedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoryDriftStore is an in-memory DriftStore used by tests and local runs.
type MemoryDriftStore struct {
	mu      sync.Mutex
	records []DriftRecord
}

func NewMemoryDriftStore() *MemoryDriftStore {
	return &MemoryDriftStore{}
}

func (s *MemoryDriftStore) Insert(ctx context.Context, r DriftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemoryDriftStore) CountRecent(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.UserID == userID && !r.DetectedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryDriftStore) ListRecent(ctx context.Context, limit int) ([]DriftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DriftRecord, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns every record in insertion order.
func (s *MemoryDriftStore) Records() []DriftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DriftRecord, len(s.records))
	copy(out, s.records)
	return out
}
