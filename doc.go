// Package authgate authenticates end users and keeps their login state across
// requests: short-lived access tokens, rotating refresh tokens, one active
// session per identity, double-submit CSRF tokens, and single-use email links
// for registration and password reset.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (LoginResult, Principal, SessionInfo, MetricsSnapshot). Flow
// orchestration, staging records, rate limiting and audit dispatch live under
// internal/ and are never exported. Session and CSRF stores live in their own
// packages so the load-test command can drive them directly.
//
// # What this package must NOT do
//
//   - Expose Redis clients or encoding details in its public API.
//   - Store a plaintext refresh token, CSRF token or link token.
//   - Block a request on email delivery; mail goes through an async queue.
//
// # Performance contract
//
// Authenticate is the hot path: one token verification, one Redis GET for the
// session pointer and, on a cache hit, one Redis GET for the identity. Login,
// RefreshAccess and Logout each run a single Lua script for the session state.
package authgate
