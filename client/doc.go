// Package client is a Go HTTP client for the authgate API.
//
// Credentials live in a cookie jar. The client echoes the CSRF token on
// mutating requests and recovers from the two renewable failures on its own:
//
//   - 401 UNAUTHENTICATED renews the access token once through
//     POST /auth/refresh-token, then replays the request.
//   - 403 CSRF_TOKEN_MISSING or CSRF_TOKEN_INVALID renews the CSRF token
//     once through POST /auth/refresh-csrf, then replays the request.
//
// Concurrent failures share one renewal through a [Coordinator]. A 401
// SESSION_SUPERSEDED is terminal: local credential state is dropped and the
// error is returned.
package client
