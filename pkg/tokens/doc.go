// Package tokens multiplexes several API credentials to maximize throughput
// under a per-credential rate limit.
//
// A [Pool] owns every credential. Callers [Pool.Acquire] a [Lease], make one
// API call with [Lease.Token], feed the response's rate-limit headers back via
// [Lease.Report], and finally [Lease.Release] the lease.
//
// Acquire reserves one unit of quota so that concurrent callers never spend
// more than a credential has left. When every credential is exhausted the
// caller is suspended until the soonest reset (or until another lease frees
// capacity), unless the pool was built with WaitOnRateLimit disabled, in
// which case Acquire fails fast with [ErrRateLimited].
//
// With no credentials configured the pool runs in unauthenticated mode if
// AllowUnauthenticated is set; otherwise [New] fails.
package tokens
