package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/wallet"
)

// AppendRequest posts one coin movement.
type AppendRequest struct {
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction"`
	Amount    int64     `json:"amount"`

	// Bucket defaults to primary.
	Bucket string `json:"bucket,omitempty"`

	Source         Source `json:"source"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Metadata       string `json:"metadata,omitempty"`
}

// AppendResult reports the posted (or previously posted) entry and the
// balance after it. Duplicate means the idempotency key matched an earlier
// entry and nothing was written.
type AppendResult struct {
	Entry     Entry           `json:"entry"`
	Balance   wallet.Snapshot `json:"balance"`
	Duplicate bool            `json:"duplicate"`
}

// Service posts ledger entries and keeps the wallet projection in step.
//
// Ordering is direction-specific. Credits append to the ledger first, then
// project: a crash in between leaves the projection behind, which the
// sweeper repairs upward. Debits take the coins out of the projection first
// (the atomic conditional decrement is the overdraft guard), then append: a
// duplicate detected at append time hands the coins back.
type Service struct {
	store    Store
	wallets  *wallet.Service
	velocity VelocityGuard
	alerts   *alerting.Bridge
	log      *slog.Logger
	clock    func() time.Time
}

func NewService(store Store, wallets *wallet.Service, velocity VelocityGuard, alerts *alerting.Bridge, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		wallets:  wallets,
		velocity: velocity,
		alerts:   alerts,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Service) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	if err := s.validate(&req); err != nil {
		s.observe(ctx, alerting.MetricTxFailure, req.UserID, 1)
		return AppendResult{}, err
	}
	s.observe(ctx, alerting.MetricTxTotal, req.UserID, 1)
	s.observe(ctx, alerting.MetricTransferAmount, req.UserID, float64(req.Amount))

	res, err := s.post(ctx, req)
	if err != nil {
		s.observe(ctx, alerting.MetricTxFailure, req.UserID, 1)
		return AppendResult{}, err
	}
	return res, nil
}

func (s *Service) validate(req *AppendRequest) error {
	if req.UserID == "" || req.Amount <= 0 {
		return ErrInvalidArgument
	}
	if !IsValidDirection(req.Direction) || !IsValidSource(req.Source) {
		return ErrInvalidArgument
	}
	if req.Bucket == "" {
		req.Bucket = wallet.BucketPrimary
	}
	if !wallet.IsKnownBucket(req.Bucket) {
		return ErrInvalidArgument
	}
	if req.IdempotencyKey == "" && requiresIdempotencyKey(req.Source) {
		return ErrInvalidArgument
	}
	return nil
}

func (s *Service) post(ctx context.Context, req AppendRequest) (AppendResult, error) {
	entry := Entry{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Direction:      req.Direction,
		Amount:         req.Amount,
		Bucket:         req.Bucket,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		CreatedAt:      s.clock().UTC(),
	}

	if req.Direction == DirectionDebit {
		return s.postDebit(ctx, entry)
	}
	return s.postCredit(ctx, entry)
}

// postCredit appends first, then projects. A first credit auto-creates the
// wallet.
func (s *Service) postCredit(ctx context.Context, entry Entry) (AppendResult, error) {
	stored, duplicate, err := s.store.Insert(ctx, entry)
	if err != nil {
		return AppendResult{}, err
	}
	if duplicate {
		return s.duplicateResult(ctx, stored)
	}

	snap, err := s.wallets.ApplyDelta(ctx, entry.UserID, entry.Bucket, entry.Amount)
	if errors.Is(err, wallet.ErrNotFound) {
		if _, err := s.wallets.CreateWallet(ctx, entry.UserID); err != nil {
			return AppendResult{}, err
		}
		snap, err = s.wallets.ApplyDelta(ctx, entry.UserID, entry.Bucket, entry.Amount)
		if err != nil {
			return AppendResult{}, err
		}
	} else if err != nil {
		// The entry is already durable; the projection lags until the next
		// sweep.
		s.log.ErrorContext(ctx, "credit projection failed, sweeper will repair",
			slog.String("entry_id", stored.ID),
			slog.String("user_id", entry.UserID),
			slog.String("error", err.Error()),
		)
		return AppendResult{Entry: stored}, nil
	}
	return AppendResult{Entry: stored, Balance: snap}, nil
}

// postDebit takes the coins first. The conditional decrement is the only
// overdraft check; if the subsequent append turns out to be a duplicate the
// coins are handed back.
func (s *Service) postDebit(ctx context.Context, entry Entry) (AppendResult, error) {
	if s.velocity != nil {
		ok, err := s.velocity.AllowDebit(ctx, entry.UserID)
		if err != nil {
			// Counting backend down: fail open, debits keep the balance
			// guard either way.
			s.log.WarnContext(ctx, "velocity guard unavailable",
				slog.String("user_id", entry.UserID),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			s.observe(ctx, alerting.MetricVelocityBlock, entry.UserID, 1)
			return AppendResult{}, ErrVelocityLimited
		}
	}

	snap, err := s.wallets.ApplyDelta(ctx, entry.UserID, entry.Bucket, -entry.Amount)
	if err != nil {
		return AppendResult{}, err
	}

	stored, duplicate, err := s.store.Insert(ctx, entry)
	if err != nil || duplicate {
		// Hand the coins back; the decrement belonged to an entry that was
		// never (or already) written. Restore, not a credit delta: the
		// returned coins must not count toward Total.
		if _, cerr := s.wallets.Restore(ctx, entry.UserID, entry.Bucket, entry.Amount); cerr != nil {
			s.log.ErrorContext(ctx, "debit compensation failed, sweeper will repair",
				slog.String("user_id", entry.UserID),
				slog.String("error", cerr.Error()),
			)
		}
		if err != nil {
			return AppendResult{}, err
		}
		return s.duplicateResult(ctx, stored)
	}
	return AppendResult{Entry: stored, Balance: snap}, nil
}

func (s *Service) duplicateResult(ctx context.Context, prior Entry) (AppendResult, error) {
	snap, err := s.wallets.GetBalance(ctx, prior.UserID)
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		return AppendResult{}, err
	}
	return AppendResult{Entry: prior, Balance: snap, Duplicate: true}, nil
}

// History lists the user's entries newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.History(ctx, userID, limit, offset)
}

func (s *Service) observe(ctx context.Context, metric alerting.Metric, user string, value float64) {
	if s.alerts != nil {
		s.alerts.Observe(ctx, metric, user, value)
	}
}
