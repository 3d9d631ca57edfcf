// Package retry runs an operation a bounded number of times with an
// explicit delay policy and retryability predicate.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DelayPolicy yields the wait before the next attempt. attempt is the
// 1-based number of the attempt that just failed.
type DelayPolicy interface {
	Delay(attempt int) time.Duration
}

type fixed time.Duration

func (f fixed) Delay(int) time.Duration { return time.Duration(f) }

// Fixed waits the same duration between every attempt.
func Fixed(d time.Duration) DelayPolicy { return fixed(d) }

type exponential struct {
	b *backoff.ExponentialBackOff
}

// Exponential doubles the wait after each failure, starting at initial and
// capped at max. Jitter is disabled so the sequence is predictable.
func Exponential(initial, max time.Duration) DelayPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return &exponential{b: b}
}

func (e *exponential) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		e.b.Reset()
	}
	return e.b.NextBackOff()
}

type Policy struct {
	MaxAttempts int
	Delay       DelayPolicy
	// IsRetryable reports whether a failed attempt should be retried.
	// Nil retries every error.
	IsRetryable func(error) bool
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the last value and error together with
// the number of attempts made.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		val T
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		val, err = op(ctx, attempt)
		if err == nil {
			return val, attempt, nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return val, attempt, err
		}
		if attempt == maxAttempts {
			return val, attempt, err
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay.Delay(attempt)
		}
		if serr := sleep(ctx, d); serr != nil {
			return val, attempt, err
		}
	}
	return val, maxAttempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
