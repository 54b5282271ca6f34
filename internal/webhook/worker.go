package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"rez-ledger/internal/alerting"
)

// Worker drains the retry queue and watches for events stuck in processing.
type Worker struct {
	svc    *Service
	alerts *alerting.Bridge
	log    *slog.Logger

	// Interval between retry-queue drains.
	Interval time.Duration
	// StuckAfter is how long an event may sit in processing before it is
	// flagged as stuck.
	StuckAfter time.Duration
	BatchSize  int
}

func NewWorker(svc *Service, alerts *alerting.Bridge, log *slog.Logger) *Worker {
	return &Worker{
		svc:        svc,
		alerts:     alerts,
		log:        log,
		Interval:   30 * time.Second,
		StuckAfter: 10 * time.Minute,
		BatchSize:  100,
	}
}

// Register attaches the worker's jobs to the scheduler.
func (w *Worker) Register(sched gocron.Scheduler) error {
	if _, err := sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() { w.RunDue(context.Background()) }),
	); err != nil {
		return err
	}
	_, err := sched.NewJob(
		gocron.DurationJob(w.StuckAfter/2),
		gocron.NewTask(func() { w.ScanStuck(context.Background()) }),
	)
	return err
}

// RunDue processes every pending or retry-due event once.
func (w *Worker) RunDue(ctx context.Context) {
	now := w.svc.clock().UTC()
	due, err := w.svc.store.ListDue(ctx, now, w.BatchSize)
	if err != nil {
		w.log.ErrorContext(ctx, "webhook retry scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range due {
		if err := w.svc.ProcessOnce(ctx, e.ID); err != nil {
			w.log.WarnContext(ctx, "webhook retry attempt failed",
				slog.String("event_id", e.ID),
				slog.String("provider", e.Provider),
				slog.Int("attempts", e.Attempts+1),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ScanStuck reports events that have sat in processing past the deadline,
// which means a worker died mid-flight.
func (w *Worker) ScanStuck(ctx context.Context) {
	cutoff := w.svc.clock().UTC().Add(-w.StuckAfter)
	stuck, err := w.svc.store.ListStuck(ctx, cutoff, w.BatchSize)
	if err != nil {
		w.log.ErrorContext(ctx, "webhook stuck scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range stuck {
		w.log.WarnContext(ctx, "webhook event stuck in processing",
			slog.String("event_id", e.ID),
			slog.String("provider", e.Provider),
			slog.Time("since", e.UpdatedAt),
		)
		if w.alerts != nil {
			w.alerts.Observe(ctx, alerting.MetricStuckTransaction, e.UserID, 1)
		}
	}
}
