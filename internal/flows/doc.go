// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunAuthenticate, RunRefresh, etc.) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// root engine maps kinds to public errors, audit events and metrics, which
// keeps the Engine type thin and lets flows be tested with plain functions.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, CSRF store, staging
// stores, identity store and rate limiter. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authgate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
