// Package stores provides Redis-backed, short-lived records for the
// verification flows and the identity read-through cache.
//
// # Design
//
// Staged registrations and reset tickets are keyed by the SHA-256 digest of
// an opaque token, never by the token itself. Reset tickets are consumed with
// a single Lua script (GET + PTTL + DEL) so two concurrent presentations
// cannot both succeed. A consumed registration is replaced by a marker that
// keeps the remaining TTL, which lets a repeated verification answer
// "already verified" instead of "expired".
//
// Every record crosses the store boundary through the codecs in codec.go.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Generate tokens or decide flow outcomes.
//   - Store password digests in the identity cache.
package stores
