package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCorrection records a manual balance correction.
func (s *Service) LogCorrection(ctx context.Context, actorID, actorRole, ip, targetUserID, entryID, metadata string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeCorrection,
		ActorID:      actorID,
		ActorRole:    actorRole,
		IPAddress:    ip,
		TargetUserID: targetUserID,
		EntryID:      entryID,
		Message:      "manual correction posted",
		Metadata:     metadata,
	})
}

// LogReconcileRun records a manually triggered reconciliation sweep. An
// empty targetUserID means a full sweep.
func (s *Service) LogReconcileRun(ctx context.Context, actorID, actorRole, ip, targetUserID string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeReconcileRun,
		ActorID:      actorID,
		ActorRole:    actorRole,
		IPAddress:    ip,
		TargetUserID: targetUserID,
		Message:      "reconciliation sweep triggered",
	})
}

// LogAlertResolved records an operator resolving an alert.
func (s *Service) LogAlertResolved(ctx context.Context, actorID, actorRole, ip, alertID string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAlertResolved,
		ActorID:   actorID,
		ActorRole: actorRole,
		IPAddress: ip,
		Message:   "alert resolved: " + alertID,
	})
}
