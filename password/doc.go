// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] is available for existing bcrypt digests. Both satisfy [Hasher]
// and [Upgrader], which reports digests produced with weaker parameters.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Request-level password policy is
// enforced by request validation; this package only enforces hard byte bounds.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authgate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
