// Package retry re-runs dial attempts against telnet servers that are
// not accepting connections yet, waiting exponentially longer between
// tries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Defaults applied to zero Backoff fields.
const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultMultiplier   = 2.0
)

// PermanentError marks a failure that another attempt cannot fix, such
// as a rejected host key.  Do returns the wrapped error at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops retrying.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is a
// PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff is a retry policy.  The wait before retry n (1-based) is
// InitialDelay * Multiplier^(n-1), capped at MaxDelay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxAttempts counts the first try.  Zero retries until ctx ends.
	MaxAttempts int

	// Jitter spreads each wait by up to ±25% so a batch of sessions
	// does not redial a recovering server in lockstep.
	Jitter bool

	// OnRetry is called after each failed attempt that will be
	// retried, with the wait that follows.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Delay returns the un-jittered wait after the given failed attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	initial, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if mult <= 0 {
		mult = defaultMultiplier
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do calls fn with attempt numbers 1, 2, … until it returns nil, a
// Permanent error, the attempt budget runs out, or ctx is done.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts == 1:
			return err
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = jitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// jitter moves d by a random amount within ±25%, never below 1ms.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	j := float64(d) + spread*(2*rand.Float64()-1)
	if j < float64(time.Millisecond) {
		return time.Millisecond
	}
	return time.Duration(j)
}
