package alerting

import "time"

// Metric names observed by the bridge. Producers across the pipeline record
// these; rules below decide when an observation becomes an alert.
type Metric string

const (
	MetricProjectionDrift   Metric = "projection_drift"
	MetricTxTotal           Metric = "transaction_total"
	MetricTxFailure         Metric = "transaction_failure"
	MetricTransferAmount    Metric = "transfer_amount"
	MetricVelocityBlock     Metric = "velocity_block"
	MetricStuckTransaction  Metric = "stuck_transaction"
	MetricSweepCompleted    Metric = "reconciliation_sweep"
	MetricSignatureFailure  Metric = "webhook_signature_failure"
	MetricWebhookDeadLetter Metric = "webhook_dead_letter"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Condition string

const (
	// ConditionValueGT fires when a single observation's value exceeds Threshold.
	ConditionValueGT Condition = "value_gt"
	// ConditionCountGT fires when the observation count within Window exceeds Threshold.
	ConditionCountGT Condition = "count_gt"
	// ConditionRateGT fires when failures/total within Window exceeds Threshold.
	ConditionRateGT Condition = "rate_gt"
	// ConditionSilentFor fires when the metric has not been observed within Window.
	ConditionSilentFor Condition = "silent_for"
)

// Channel names routable by the bridge.
const (
	ChannelLog      = "log"
	ChannelTelegram = "telegram"
)

type Rule struct {
	Name      string
	Metric    Metric
	Condition Condition
	Threshold float64
	Window    time.Duration
	// PerUser scopes counting rules to the user tag of the observation.
	PerUser  bool
	Severity Severity
	Channels []string
}

// DefaultRules is the static rule table for the wallet pipeline.
// highValueThreshold is the single-transfer amount that warrants an info alert.
func DefaultRules(highValueThreshold int64) []Rule {
	return []Rule{
		{
			Name:      "projection_drift_detected",
			Metric:    MetricProjectionDrift,
			Condition: ConditionValueGT,
			Threshold: 0,
			Severity:  SeverityCritical,
			Channels:  []string{ChannelLog, ChannelTelegram},
		},
		{
			Name:      "transaction_failure_rate",
			Metric:    MetricTxFailure,
			Condition: ConditionRateGT,
			Threshold: 0.05,
			Window:    5 * time.Minute,
			Severity:  SeverityWarning,
			Channels:  []string{ChannelLog},
		},
		{
			Name:      "high_value_transfer",
			Metric:    MetricTransferAmount,
			Condition: ConditionValueGT,
			Threshold: float64(highValueThreshold),
			Severity:  SeverityInfo,
			Channels:  []string{ChannelLog},
		},
		{
			Name:      "velocity_blocks_per_user",
			Metric:    MetricVelocityBlock,
			Condition: ConditionCountGT,
			Threshold: 10,
			Window:    time.Hour,
			PerUser:   true,
			Severity:  SeverityWarning,
			Channels:  []string{ChannelLog},
		},
		{
			Name:      "reconciliation_silent",
			Metric:    MetricSweepCompleted,
			Condition: ConditionSilentFor,
			Window:    25 * time.Hour,
			Severity:  SeverityCritical,
			Channels:  []string{ChannelLog, ChannelTelegram},
		},
		{
			// The tag on signature-failure observations is the caller's
			// address, so repeat offenders escalate individually.
			Name:      "webhook_signature_failures",
			Metric:    MetricSignatureFailure,
			Condition: ConditionCountGT,
			Threshold: 5,
			Window:    10 * time.Minute,
			PerUser:   true,
			Severity:  SeverityWarning,
			Channels:  []string{ChannelLog},
		},
		{
			Name:      "webhook_dead_letter",
			Metric:    MetricWebhookDeadLetter,
			Condition: ConditionValueGT,
			Threshold: 0,
			Severity:  SeverityCritical,
			Channels:  []string{ChannelLog, ChannelTelegram},
		},
		{
			Name:      "stuck_transactions",
			Metric:    MetricStuckTransaction,
			Condition: ConditionCountGT,
			Threshold: 5,
			Window:    15 * time.Minute,
			Severity:  SeverityWarning,
			Channels:  []string{ChannelLog},
		},
	}
}
