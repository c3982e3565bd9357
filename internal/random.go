package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// SessionID is 128 random bits, rendered as unpadded base64url.
type SessionID [16]byte

const (
	opaqueTokenSize = 32
	csrfTokenSize   = 32
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// NewOpaqueToken returns a random URL-safe token and the digest used as its
// store key. Only the digest is ever persisted.
func NewOpaqueToken() (plain string, digest string, err error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(raw[:])
	return plain, DigestToken(plain), nil
}

// NewCSRFToken returns a random hex token.
func NewCSRFToken() (string, error) {
	var raw [csrfTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// DigestToken is the deterministic one-way digest of a presented token.
func DigestToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// EqualDigest compares two digests in constant time.
func EqualDigest(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
