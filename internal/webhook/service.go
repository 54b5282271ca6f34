package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/ledger"
	"rez-ledger/internal/retry"
	"rez-ledger/internal/wallet"
)

// Config carries the intake settings.
type Config struct {
	// Secrets maps provider name to its HMAC secret. Providers not listed
	// here are rejected.
	Secrets      map[string]string
	ReplayWindow time.Duration
	// MaxAttempts bounds processing attempts before dead-lettering.
	MaxAttempts int
	Backoff     retry.Policy
}

// Service receives provider callbacks, persists them before acknowledging,
// and posts them to the ledger. Receipt and processing are decoupled: a
// callback is acked once it is durably recorded, and the posting side is
// retried independently.
type Service struct {
	cfg    Config
	store  Store
	posts  *ledger.Service
	alerts *alerting.Bridge
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(cfg Config, store Store, posts *ledger.Service, alerts *alerting.Bridge, log *slog.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = 5 * time.Minute
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		posts:  posts,
		alerts: alerts,
		log:    log,
		clock:  time.Now,
	}
}

type eventPayload struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Bucket    string `json:"bucket"`
	Direction string `json:"direction"`
}

// Handle processes one incoming callback. The returned event reflects the
// state after the synchronous processing attempt; callers ack as soon as
// Handle returns without error, regardless of processing outcome. origin is
// the caller's remote address; rejected signatures are observed under it so
// repeated violations from one source escalate.
func (s *Service) Handle(ctx context.Context, provider, signatureHeader string, body []byte, origin string) (Event, error) {
	secret, ok := s.cfg.Secrets[provider]
	if !ok {
		return Event{}, ErrUnknownProvider
	}
	now := s.clock().UTC()
	if err := VerifySignature(secret, signatureHeader, body, now, s.cfg.ReplayWindow); err != nil {
		s.observe(ctx, alerting.MetricSignatureFailure, origin, 1)
		s.log.WarnContext(ctx, "webhook signature rejected",
			slog.String("provider", provider),
			slog.String("origin", origin),
			slog.String("error", err.Error()),
		)
		return Event{}, err
	}

	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, ErrInvalidPayload
	}
	if p.EventID == "" || p.UserID == "" || p.Amount <= 0 {
		return Event{}, ErrInvalidPayload
	}
	if p.Bucket == "" {
		p.Bucket = wallet.BucketPrimary
	}
	if !wallet.IsKnownBucket(p.Bucket) {
		return Event{}, ErrInvalidPayload
	}
	if p.Direction == "" {
		p.Direction = string(ledger.DirectionCredit)
	}
	if !ledger.IsValidDirection(ledger.Direction(p.Direction)) {
		return Event{}, ErrInvalidPayload
	}

	digest := sha256.Sum256(body)
	event := Event{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     p.EventID,
		UserID:      p.UserID,
		Direction:   p.Direction,
		Amount:      p.Amount,
		Bucket:      p.Bucket,
		Payload:     string(body),
		PayloadHash: hex.EncodeToString(digest[:]),
		ReceivedAt:  now,
	}
	stored, duplicate, err := s.store.Insert(ctx, event)
	if err != nil {
		return Event{}, err
	}
	if duplicate {
		// Redelivery of an already recorded event; nothing new to do.
		return stored, nil
	}

	if err := s.ProcessOnce(ctx, stored.ID); err != nil {
		s.log.ErrorContext(ctx, "webhook processing error",
			slog.String("event_id", stored.ID),
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
	}
	return s.store.Get(ctx, provider, p.EventID)
}

// ProcessOnce runs a single processing attempt for the event. It is a no-op
// when the event is not claimable (already terminal, mid-flight elsewhere,
// or not yet due).
func (s *Service) ProcessOnce(ctx context.Context, id string) error {
	now := s.clock().UTC()
	e, claimed, err := s.store.Claim(ctx, id, now)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	meta, _ := json.Marshal(map[string]string{
		"provider": e.Provider,
		"event_id": e.EventID,
	})
	res, err := s.posts.Append(ctx, ledger.AppendRequest{
		UserID:         e.UserID,
		Direction:      ledger.Direction(e.Direction),
		Amount:         e.Amount,
		Bucket:         e.Bucket,
		Source:         ledger.SourceWebhook,
		IdempotencyKey: e.Provider + ":" + e.EventID,
		Metadata:       string(meta),
	})
	now = s.clock().UTC()
	if err == nil {
		if res.Duplicate {
			_, err = s.store.MarkDuplicate(ctx, id, now)
			return err
		}
		_, err = s.store.MarkSuccess(ctx, id, now)
		return err
	}

	if s.permanent(err) {
		return s.deadLetter(ctx, e, err, now)
	}
	if e.Attempts >= s.cfg.MaxAttempts {
		return s.deadLetter(ctx, e, fmt.Errorf("attempts exhausted: %w", err), now)
	}
	nextRetry := now.Add(s.cfg.Backoff.Delay(e.Attempts))
	if _, merr := s.store.MarkFailed(ctx, e.ID, err.Error(), nextRetry, now); merr != nil {
		return merr
	}
	return err
}

// permanent reports whether retrying the ledger post can never succeed.
func (s *Service) permanent(err error) bool {
	return retry.IsPermanent(err) ||
		errors.Is(err, ledger.ErrInvalidArgument) ||
		errors.Is(err, wallet.ErrInsufficientBalance) ||
		errors.Is(err, wallet.ErrNotFound)
}

func (s *Service) deadLetter(ctx context.Context, e Event, cause error, now time.Time) error {
	if _, err := s.store.MarkDeadLetter(ctx, e.ID, cause.Error(), now); err != nil {
		return err
	}
	s.observe(ctx, alerting.MetricWebhookDeadLetter, e.UserID, 1)
	s.log.ErrorContext(ctx, "webhook event dead-lettered",
		slog.String("event_id", e.ID),
		slog.String("provider", e.Provider),
		slog.String("user_id", e.UserID),
		slog.String("error", cause.Error()),
	)
	return cause
}

func (s *Service) observe(ctx context.Context, metric alerting.Metric, tag string, value float64) {
	if s.alerts != nil {
		s.alerts.Observe(ctx, metric, tag, value)
	}
}

// Event looks up one stored event.
func (s *Service) Event(ctx context.Context, provider, eventID string) (Event, error) {
	return s.store.Get(ctx, provider, eventID)
}
