package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"rez-ledger/internal/alerting"
)

// Scheduler runs the sweep on an interval and keeps the alerting bridge's
// staleness rules evaluated between sweeps.
type Scheduler struct {
	sweeper *Sweeper
	alerts  *alerting.Bridge
	log     *slog.Logger

	Interval time.Duration
}

func NewScheduler(sweeper *Sweeper, alerts *alerting.Bridge, log *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{sweeper: sweeper, alerts: alerts, log: log, Interval: interval}
}

// Register attaches the sweep jobs to the scheduler.
func (s *Scheduler) Register(sched gocron.Scheduler) error {
	if _, err := sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(func() {
			if _, err := s.sweeper.SweepAll(context.Background()); err != nil {
				s.log.Error("scheduled sweep failed", slog.String("error", err.Error()))
			}
		}),
	); err != nil {
		return err
	}
	if s.alerts == nil {
		return nil
	}
	_, err := sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() { s.alerts.EvaluateStale(context.Background()) }),
	)
	return err
}
