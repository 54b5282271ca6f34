package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// FlowSummaryRequest requests aggregated coin-flow metrics derived from the
// immutable ledger.

type FlowSummaryRequest struct {
	Range TimeRange `json:"range"`
	// UserID narrows the summary to one wallet; empty means platform-wide.
	UserID string `json:"user_id,omitempty"`
}

type FlowSummary struct {
	UserID string `json:"user_id,omitempty"`

	EntryCount   int   `json:"entry_count"`
	TotalCredits int64 `json:"total_credits"`
	TotalDebits  int64 `json:"total_debits"`
	NetDelta     int64 `json:"net_delta"`

	// BySource and ByBucket hold signed totals keyed by entry source and
	// coin bucket.
	BySource map[string]int64 `json:"by_source"`
	ByBucket map[string]int64 `json:"by_bucket"`
}

// IntakeSummaryRequest requests webhook-pipeline health metrics.

type IntakeSummaryRequest struct {
	Range TimeRange `json:"range"`
	// Provider narrows the summary to one gateway; empty means all.
	Provider string `json:"provider,omitempty"`
}

type IntakeSummary struct {
	Provider string `json:"provider,omitempty"`

	Received    int `json:"received"`
	Succeeded   int `json:"succeeded"`
	Duplicates  int `json:"duplicates"`
	Failed      int `json:"failed"`
	DeadLetters int `json:"dead_letters"`
	InFlight    int `json:"in_flight"`

	SuccessRate float64 `json:"success_rate"`
}
