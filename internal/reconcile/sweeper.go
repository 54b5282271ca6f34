package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/ledger"
	"rez-ledger/internal/wallet"
)

// Sweeper walks every user with ledger activity and reconciles the wallet
// projection against the authoritative ledger sum.
//
// Repairs are optimistic: the swap applies only if the projection still
// holds the drifted value it was compared against. A swap lost to a
// concurrent legitimate balance change is not an error; the user is simply
// re-checked on the next cycle.
type Sweeper struct {
	entries ledger.Store
	wallets *wallet.Service
	drifts  DriftStore
	alerts  *alerting.Bridge
	log     *slog.Logger
	clock   func() time.Time

	// Epsilon is the tolerated absolute divergence in coins.
	Epsilon int64
	// BatchSize bounds each user-page so a large ledger cannot pin memory.
	BatchSize int
	// StreakWindow is how far back repeated drift on one user counts toward
	// escalation.
	StreakWindow time.Duration
}

func NewSweeper(entries ledger.Store, wallets *wallet.Service, drifts DriftStore, alerts *alerting.Bridge, log *slog.Logger) *Sweeper {
	return &Sweeper{
		entries:      entries,
		wallets:      wallets,
		drifts:       drifts,
		alerts:       alerts,
		log:          log,
		clock:        time.Now,
		BatchSize:    500,
		StreakWindow: 24 * time.Hour,
	}
}

// SweepAll reconciles every user with ledger activity. Per-user failures are
// isolated: one broken row never aborts the sweep.
func (s *Sweeper) SweepAll(ctx context.Context) (Summary, error) {
	start := s.clock()
	var sum Summary

	after := ""
	for {
		userIDs, err := s.entries.ListUserIDs(ctx, after, s.BatchSize)
		if err != nil {
			return sum, err
		}
		if len(userIDs) == 0 {
			break
		}
		for _, userID := range userIDs {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Scanned++
			rec, err := s.SweepUser(ctx, userID)
			if err != nil {
				sum.Failed++
				s.log.ErrorContext(ctx, "sweep user failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if rec != nil {
				sum.Drifts++
				if rec.Repaired {
					sum.Repaired++
				}
			}
		}
		after = userIDs[len(userIDs)-1]
	}

	sum.Duration = s.clock().Sub(start)
	s.log.InfoContext(ctx, "reconciliation sweep completed",
		slog.Int("scanned", sum.Scanned),
		slog.Int("drifts", sum.Drifts),
		slog.Int("repaired", sum.Repaired),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Duration),
	)
	if s.alerts != nil {
		s.alerts.Observe(ctx, alerting.MetricSweepCompleted, "", float64(sum.Scanned))
	}
	return sum, nil
}

// SweepUser reconciles one user. It returns nil when the projection agrees
// with the ledger within Epsilon, otherwise the recorded drift.
func (s *Sweeper) SweepUser(ctx context.Context, userID string) (*DriftRecord, error) {
	expected, err := s.entries.SumBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap, err := s.wallets.Inspect(ctx, userID)
	if errors.Is(err, wallet.ErrNotFound) {
		// Ledger activity with no projection row at all.
		if _, err := s.wallets.CreateWallet(ctx, userID); err != nil {
			return nil, err
		}
		snap, err = s.wallets.Inspect(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	delta := expected - snap.Available
	if abs(delta) <= s.Epsilon {
		return nil, nil
	}

	repaired, err := s.wallets.RepairAvailable(ctx, userID, snap.Available, expected)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	rec := DriftRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Expected:   expected,
		Observed:   snap.Available,
		Delta:      delta,
		Repaired:   repaired,
		DetectedAt: now,
	}
	if err := s.drifts.Insert(ctx, rec); err != nil {
		return nil, err
	}

	streak, err := s.drifts.CountRecent(ctx, userID, now.Add(-s.StreakWindow))
	if err != nil {
		streak = 0
	}
	logAttrs := []any{
		slog.String("user_id", userID),
		slog.Int64("expected", expected),
		slog.Int64("observed", snap.Available),
		slog.Int64("delta", delta),
		slog.Bool("repaired", repaired),
		slog.Int("streak", streak),
	}
	if streak >= 3 {
		// Repeated drift on one user means something upstream keeps
		// corrupting the projection, not a transient crash window.
		s.log.ErrorContext(ctx, "recurring balance drift", logAttrs...)
	} else {
		s.log.WarnContext(ctx, "balance drift detected", logAttrs...)
	}
	if s.alerts != nil {
		s.alerts.Observe(ctx, alerting.MetricProjectionDrift, userID, float64(abs(delta)))
	}
	return &rec, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
