package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is the shared retry/backoff policy for webhook processing and
// queued crediting work: exponential backoff with jitter, bounded attempts,
// each attempt timing out independently.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	PerTryTimeout  time.Duration
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 1 * time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.JitterFraction < 0 || out.JitterFraction > 1 {
		out.JitterFraction = 0.2
	}
	if out.PerTryTimeout <= 0 {
		out.PerTryTimeout = 10 * time.Second
	}
	return out
}

// Delay returns the backoff before the given retry attempt (1-based: the
// delay after the first failure is Delay(1)). The result is base*2^(n-1)
// capped at MaxDelay, then jittered by ±JitterFraction.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.JitterFraction > 0 {
		span := float64(d) * p.JitterFraction
		d = time.Duration(float64(d) - span + rand.Float64()*2*span)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn with bounded retries. Each attempt gets its own timeout.
// It returns the last error once the attempt budget is exhausted; callers
// move the unit of work to a dead-letter state at that point.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		tryCtx, cancel := context.WithTimeout(ctx, p.PerTryTimeout)
		err := fn(tryCtx)
		cancel()

		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			var pe *permanentError
			errors.As(err, &pe)
			return pe.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
