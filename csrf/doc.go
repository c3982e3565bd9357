// Package csrf implements the double-submit anti-forgery token.
//
// A token is issued per identity at login (and on demand), delivered to the
// client through a cookie and the response body, and stored server-side as a
// SHA-256 digest with a one hour TTL. Mutating requests must echo it in the
// X-CSRF-Token header.
//
// # What this package must NOT do
//
//   - Decide which HTTP methods are exempt; the middleware does that.
//   - Store the plaintext token.
package csrf
