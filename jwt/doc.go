// Package jwt issues and verifies the signed access and refresh credentials
// that carry {identity id, session id}.
//
// Verification here is purely cryptographic: signature, algorithm, expiry,
// issuer/audience and token type. Whether the session is still live is the
// session store's decision, not this package's.
package jwt
