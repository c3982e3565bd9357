// Package api exposes an [authgate.Engine] over HTTP with gorilla/mux.
//
// Credentials travel in HttpOnly cookies. The CSRF token is also returned
// in JSON bodies so the browser can echo it in the X-CSRF-Token header on
// mutating requests.
//
// # Routes
//
//	GET  /health
//	POST /auth/register
//	GET  /auth/check-username?username=
//	POST /auth/verify/{token}
//	POST /auth/login
//	POST /auth/refresh-token
//	POST /auth/refresh-csrf        (auth)
//	POST /auth/forgot-password
//	POST /auth/reset-password/{token}
//	GET  /auth/me                  (auth)
//	POST /auth/logout              (auth, relaxed CSRF)
//	GET  /admin/ping               (auth, role admin)
//	GET  /metrics                  (when a metrics handler is configured)
//
// Error bodies and status codes come from the middleware package.
package api
