package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses, flaky tool runs)
// with this type so that [Policy.Do] attempts the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Multiplier scales the delay after each failed attempt. Values below 1 mean 2.
	Multiplier float64
	// MaxDelay caps the delay between attempts. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy is 3 attempts with a 1 second initial delay, doubling each retry.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second, Multiplier: 2}

// WithRetries returns p with Attempts set to retries+1.
func (p Policy) WithRetries(retries int) Policy {
	p.Attempts = max(retries, 0) + 1
	return p
}

// Backoff returns the delay to wait after the given failed attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.Delay)
	for range attempt {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. fn receives the 0-based attempt index. Only errors
// wrapped with [RetryableError] are retried. Returns the last error if all
// attempts fail, or ctx.Err() if cancelled while waiting.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(i); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			if err := sleep(ctx, p.Backoff(i)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// IsRetryable reports whether err is wrapped with [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

func sleep(ctx context.Context, d time.Duration) error {
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
