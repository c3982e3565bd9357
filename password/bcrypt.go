package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt is the bcrypt alternative to [Argon2] for deployments that already
// hold bcrypt digests.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a Bcrypt hasher, clamping cost into bcrypt's valid range.
func NewBcrypt(cost int) *Bcrypt {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt digest of password. bcrypt only reads 72 bytes, so
// longer inputs are rejected instead of silently truncated.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NeedsUpgrade reports whether encodedHash was produced with a lower cost than b.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}

// Verify reports whether password matches the bcrypt digest.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
