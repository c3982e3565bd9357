// Package internal contains helper utilities that are intentionally private to authgate,
// mostly secure random generation and token digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: environment/.env loading for the server binaries
//   - flows: pure-function flow orchestrators for Engine operations
//   - rate: Redis-backed fixed-window rate limiting
//   - stores: Redis stores for staged registrations, reset tickets and the identity cache
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
