package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without any call attempt while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 30 * time.Second
	}
	return out
}

// Breaker guards outbound calls to an external provider.
//
// Transitions:
// - closed: consecutive failures reaching FailureThreshold open the breaker.
// - open: calls fail fast until ResetTimeout since the last failure, then half-open.
// - half-open: exactly one trial call is admitted; success closes, failure reopens.
type Breaker struct {
	mu sync.Mutex

	cfg   Config
	clock func() time.Time

	state        State
	failures     int
	lastFailure  time.Time
	trialInFlight bool
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), clock: time.Now, state: StateClosed}
}

// Do runs fn under the breaker. When the breaker is open, fn is not invoked
// and ErrOpen is returned.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err == nil)
	return err
}

// State reports the current state, applying the open→half-open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return ErrOpen
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
		if success {
			b.state = StateClosed
			b.failures = 0
			return
		}
		b.state = StateOpen
		b.lastFailure = b.clock()
		return
	}

	if success {
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.clock()
	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.clock().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.trialInFlight = false
	}
}
