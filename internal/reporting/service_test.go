package reporting

import (
	"context"
	"testing"
	"time"

	"rez-ledger/internal/ledger"
	"rez-ledger/internal/webhook"
)

func TestFlowSummary_ValidatesRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	_, err := svc.FlowSummary(context.Background(), FlowSummaryRequest{})
	if err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.FlowSummary(context.Background(), FlowSummaryRequest{
		Range: TimeRange{From: from, To: from},
	})
	if err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}

func TestFlowSummary_AggregatesBySourceAndBucket(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	add := func(userID string, dir ledger.Direction, amount int64, source ledger.Source, bucket string, at time.Time) {
		repo.AddEntry(ledger.Entry{
			UserID: userID, Direction: dir, Amount: amount,
			Source: source, Bucket: bucket, CreatedAt: at,
		})
	}
	add("u1", ledger.DirectionCredit, 500, ledger.SourceOrder, "primary", base.Add(time.Hour))
	add("u1", ledger.DirectionCredit, 200, ledger.SourceWebhook, "cashback", base.Add(2*time.Hour))
	add("u1", ledger.DirectionDebit, 100, ledger.SourceOrder, "primary", base.Add(3*time.Hour))
	add("u2", ledger.DirectionCredit, 50, ledger.SourceReferral, "primary", base.Add(4*time.Hour))
	// Outside the range: ignored.
	add("u1", ledger.DirectionCredit, 999, ledger.SourceOrder, "primary", base.Add(48*time.Hour))

	svc := NewService(repo)
	sum, err := svc.FlowSummary(context.Background(), FlowSummaryRequest{
		Range: TimeRange{From: base, To: base.Add(24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("flow summary: %v", err)
	}

	if sum.EntryCount != 4 {
		t.Fatalf("entry count=%d want 4", sum.EntryCount)
	}
	if sum.TotalCredits != 750 || sum.TotalDebits != 100 || sum.NetDelta != 650 {
		t.Fatalf("credits=%d debits=%d net=%d", sum.TotalCredits, sum.TotalDebits, sum.NetDelta)
	}
	if sum.BySource["order"] != 400 {
		t.Fatalf("order source=%d want 400", sum.BySource["order"])
	}
	if sum.ByBucket["cashback"] != 200 {
		t.Fatalf("cashback bucket=%d want 200", sum.ByBucket["cashback"])
	}

	// Scoped to one user.
	sum, err = svc.FlowSummary(context.Background(), FlowSummaryRequest{
		Range:  TimeRange{From: base, To: base.Add(24 * time.Hour)},
		UserID: "u2",
	})
	if err != nil {
		t.Fatalf("scoped summary: %v", err)
	}
	if sum.EntryCount != 1 || sum.TotalCredits != 50 {
		t.Fatalf("scoped: count=%d credits=%d", sum.EntryCount, sum.TotalCredits)
	}
}

func TestIntakeSummary_CountsByStatus(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	add := func(provider string, status webhook.Status) {
		repo.AddWebhookEvent(webhook.Event{
			Provider: provider, Status: status, ReceivedAt: base.Add(time.Hour),
		})
	}
	add("razorpay", webhook.StatusSuccess)
	add("razorpay", webhook.StatusSuccess)
	add("razorpay", webhook.StatusDuplicate)
	add("razorpay", webhook.StatusDeadLetter)
	add("stripe", webhook.StatusFailed)

	svc := NewService(repo)
	sum, err := svc.IntakeSummary(context.Background(), IntakeSummaryRequest{
		Range: TimeRange{From: base, To: base.Add(24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("intake summary: %v", err)
	}
	if sum.Received != 5 || sum.Succeeded != 2 || sum.Duplicates != 1 || sum.DeadLetters != 1 || sum.Failed != 1 {
		t.Fatalf("summary %+v", sum)
	}
	if sum.SuccessRate != 0.6 {
		t.Fatalf("success rate=%v want 0.6", sum.SuccessRate)
	}

	sum, err = svc.IntakeSummary(context.Background(), IntakeSummaryRequest{
		Range:    TimeRange{From: base, To: base.Add(24 * time.Hour)},
		Provider: "stripe",
	})
	if err != nil {
		t.Fatalf("scoped intake: %v", err)
	}
	if sum.Received != 1 || sum.Failed != 1 {
		t.Fatalf("scoped summary %+v", sum)
	}
}
