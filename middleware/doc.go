// Package middleware adapts authgate.Engine to net/http.
//
// # Chain
//
//   - [ClientIP] stamps the caller's address on the request context.
//   - [RateLimit] enforces the global per-IP window.
//   - [RequireAuth] resolves the access cookie into a principal.
//   - [RequireRole] gates a route on the principal's role.
//   - [RequireCSRF] checks the double-submit header on mutating methods.
//
// Failures are written as the JSON error body shared with the api package
// ([WriteError]), so clients see one error shape everywhere.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
