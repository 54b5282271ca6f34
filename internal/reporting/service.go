package reporting

import (
	"context"
	"errors"
	"time"

	"rez-ledger/internal/ledger"
	"rez-ledger/internal/webhook"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Implementations should query immutable sources (ledger entries, webhook
//   events); reporting never reads the mutable projection.

type Repository interface {
	ListEntries(ctx context.Context, from, to time.Time, userID string) ([]ledger.Entry, error)
	ListWebhookEvents(ctx context.Context, from, to time.Time, provider string) ([]webhook.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) FlowSummary(ctx context.Context, req FlowSummaryRequest) (FlowSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return FlowSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return FlowSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListEntries(ctx, req.Range.From, req.Range.To, req.UserID)
	if err != nil {
		return FlowSummary{}, err
	}

	out := FlowSummary{
		UserID:   req.UserID,
		BySource: make(map[string]int64),
		ByBucket: make(map[string]int64),
	}
	for _, e := range entries {
		out.EntryCount++
		signed := e.SignedAmount()
		if signed > 0 {
			out.TotalCredits += signed
		} else {
			out.TotalDebits += -signed
		}
		out.BySource[string(e.Source)] += signed
		out.ByBucket[e.Bucket] += signed
	}
	out.NetDelta = out.TotalCredits - out.TotalDebits
	return out, nil
}

func (s *Service) IntakeSummary(ctx context.Context, req IntakeSummaryRequest) (IntakeSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return IntakeSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return IntakeSummary{}, errors.New("reporting: repository not configured")
	}

	events, err := s.repo.ListWebhookEvents(ctx, req.Range.From, req.Range.To, req.Provider)
	if err != nil {
		return IntakeSummary{}, err
	}

	out := IntakeSummary{Provider: req.Provider}
	for _, e := range events {
		out.Received++
		switch e.Status {
		case webhook.StatusSuccess:
			out.Succeeded++
		case webhook.StatusDuplicate:
			out.Duplicates++
		case webhook.StatusFailed:
			out.Failed++
		case webhook.StatusDeadLetter:
			out.DeadLetters++
		case webhook.StatusPending, webhook.StatusProcessing:
			out.InFlight++
		}
	}
	if out.Received > 0 {
		// Duplicates are successful deliveries from the provider's side.
		out.SuccessRate = float64(out.Succeeded+out.Duplicates) / float64(out.Received)
	}
	return out, nil
}
