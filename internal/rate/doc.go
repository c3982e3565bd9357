// Package rate provides the Redis-backed fixed-window limiter used for the
// global request throttle and the per client/email login and register windows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The key's
// remaining TTL is the retry-after hint. Keys: <prefix>:rl:<scope>:<identifier>.
//
// # What this package must NOT do
//
//   - Decide scopes or identifiers; callers own the policy.
//   - Be imported outside the authgate module.
package rate
