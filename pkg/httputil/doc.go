// Package httputil provides retry infrastructure shared by the registry and
// API clients and by the external tool runner.
//
// # Retry
//
// [Policy.Do] runs an operation until it succeeds, fails with a non-retryable
// error, or runs out of attempts. Only failures wrapped in [RetryableError]
// are retried, so callers decide what is transient:
//
//   - Network errors
//   - 5xx server errors
//   - Gateway failures reported by external tools
//
// Delays grow exponentially between attempts:
//
//	p := httputil.Policy{Attempts: 4, Delay: time.Second, Multiplier: 2}
//	err := p.Do(ctx, func(attempt int) error {
//	    return fetch()
//	})
//
// # Configuration
//
// [DefaultPolicy] is suitable for most HTTP calls:
//
//   - Attempts: 3
//   - Base backoff: 1 second, doubling
//
// The tool runner uses its own policy (3 retries by default) configured via
// TOOL_RETRIES and TOOL_BACKOFF.
package httputil
