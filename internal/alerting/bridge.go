package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the outbound alert payload. This service only produces it;
// delivery transport lives behind the Notifier interface.
type Event struct {
	ID        string            `json:"id"`
	Rule      string            `json:"rule"`
	Metric    Metric            `json:"metric"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Resolved  bool              `json:"resolved"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier delivers an alert to one channel. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

const maxRetainedEvents = 256

// Bridge is the rule-driven anomaly detector for the wallet pipeline.
// Producers call Observe; the bridge evaluates the static rule table and
// pushes coalesced events to the configured channels.
type Bridge struct {
	recorder  *Recorder
	rules     []Rule
	notifiers map[string]Notifier
	coalesce  Coalescer
	log       *slog.Logger
	clock     func() time.Time

	mu        sync.Mutex
	events    []Event
	startedAt time.Time

	// minRateSample avoids firing the failure-rate rule off a handful of
	// requests (1 failure out of 2 is not a 50% incident).
	minRateSample int
}

func NewBridge(rules []Rule, coalesce Coalescer, log *slog.Logger, notifiers ...Notifier) *Bridge {
	b := &Bridge{
		recorder:      NewRecorder(),
		rules:         rules,
		notifiers:     make(map[string]Notifier, len(notifiers)),
		coalesce:      coalesce,
		log:           log,
		clock:         time.Now,
		minRateSample: 20,
	}
	for _, n := range notifiers {
		b.notifiers[n.Name()] = n
	}
	b.startedAt = b.clock()
	return b
}

// Observe records one observation and evaluates every rule attached to the
// metric. It never blocks on notification failures.
func (b *Bridge) Observe(ctx context.Context, metric Metric, user string, value float64) {
	b.recorder.Observe(metric, user, value)
	now := b.clock()

	for _, rule := range b.rules {
		if rule.Metric != metric || rule.Condition == ConditionSilentFor {
			continue
		}
		if b.ruleFires(rule, user, value, now) {
			b.fire(ctx, rule, user, value)
		}
	}
}

// EvaluateStale checks silence rules; run it periodically from the scheduler.
func (b *Bridge) EvaluateStale(ctx context.Context) {
	now := b.clock()
	for _, rule := range b.rules {
		if rule.Condition != ConditionSilentFor {
			continue
		}
		last, seen := b.recorder.LastSeen(rule.Metric)
		if !seen {
			// Never observed: only meaningful once the process has been up
			// longer than the window.
			last = b.startedAt
		}
		if now.Sub(last) > rule.Window {
			b.fire(ctx, rule, "", now.Sub(last).Hours())
		}
	}
}

// Resolve acknowledges a previously emitted event.
func (b *Bridge) Resolve(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.events {
		if b.events[i].ID == id {
			b.events[i].Resolved = true
			return true
		}
	}
	return false
}

// RecentEvents returns a copy of the retained event ring, newest last.
func (b *Bridge) RecentEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Bridge) ruleFires(rule Rule, user string, value float64, now time.Time) bool {
	switch rule.Condition {
	case ConditionValueGT:
		return value > rule.Threshold
	case ConditionCountGT:
		tag := ""
		if rule.PerUser {
			tag = user
		}
		return float64(b.recorder.CountSince(rule.Metric, tag, now.Add(-rule.Window))) > rule.Threshold
	case ConditionRateGT:
		since := now.Add(-rule.Window)
		total := b.recorder.CountSince(MetricTxTotal, "", since)
		if total < b.minRateSample {
			return false
		}
		failures := b.recorder.CountSince(rule.Metric, "", since)
		return float64(failures)/float64(total) > rule.Threshold
	default:
		return false
	}
}

func (b *Bridge) fire(ctx context.Context, rule Rule, user string, value float64) {
	fingerprint := rule.Name
	if user != "" {
		fingerprint += "|" + user
	}
	first, err := b.coalesce.FirstInWindow(ctx, fingerprint, coalesceWindowFor(rule))
	if err != nil {
		b.log.Warn("alert coalesce check failed, sending anyway", "rule", rule.Name, "err", err)
	} else if !first {
		return
	}

	e := Event{
		ID:        uuid.NewString(),
		Rule:      rule.Name,
		Metric:    rule.Metric,
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("%s: %s %s %.2f", rule.Name, rule.Metric, rule.Condition, value),
		Context:   map[string]string{},
		CreatedAt: b.clock(),
	}
	if user != "" {
		e.Context["user_id"] = user
	}
	if rule.Window > 0 {
		e.Context["window"] = rule.Window.String()
	}

	b.retain(e)

	for _, ch := range rule.Channels {
		n, ok := b.notifiers[ch]
		if !ok {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			b.log.Error("alert delivery failed", "rule", rule.Name, "channel", ch, "err", err)
		}
	}
}

func (b *Bridge) retain(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if len(b.events) > maxRetainedEvents {
		b.events = b.events[len(b.events)-maxRetainedEvents:]
	}
}

func coalesceWindowFor(rule Rule) time.Duration {
	if rule.Window > 0 {
		return rule.Window / 2
	}
	return 10 * time.Minute
}
