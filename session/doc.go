// Package session provides the Redis-backed session store that enforces a
// single active session per identity.
//
// # Key layout
//
//	<prefix>:active:<identityID>  -> session id (the active-session pointer)
//	<prefix>:sess:<sessionID>     -> binary session metadata
//	<prefix>:rt:<identityID>      -> SHA-256 digest of the current refresh token
//
// All three keys share the session TTL and are written together by Lua
// scripts, so a concurrent liveness check observes either the old session or
// the new one, never a mix.
//
// # Architecture boundaries
//
// The store mints credentials through the [Tokens] interface and never parses
// access tokens itself. Identity records, CSRF tokens and the identity cache
// live elsewhere.
//
// # What this package must NOT do
//
//   - Import authgate or jwt (no upward imports).
//   - Persist plaintext refresh tokens.
//   - Tell callers which refresh check failed in a way meant for end users;
//     every rotation failure wraps [ErrSessionExpired].
package session
