package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal"
	"github.com/redis/go-redis/v9"
)

// HeaderName is the request header that must echo the token.
const HeaderName = "X-CSRF-Token"

var (
	// ErrMissing is returned when a mutating request carries no token.
	ErrMissing = errors.New("csrf token missing")
	// ErrInvalid is returned when the presented token does not match the stored one.
	ErrInvalid = errors.New("csrf token invalid")
	// ErrRedisUnavailable is returned when the backing Redis call fails.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Mode selects how an absent stored token is treated.
type Mode int

const (
	// ModeStrict rejects requests when no token is stored.
	ModeStrict Mode = iota
	// ModeLogout lets the request through when no token is stored, but still
	// requires an exact match when one exists.
	ModeLogout
)

// Store issues, verifies and revokes per-identity CSRF tokens.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store using prefix as key namespace.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(identityID string) string {
	return s.prefix + ":csrf:" + identityID
}

// Issue replaces the identity's token with a fresh one and returns it.
func (s *Store) Issue(ctx context.Context, identityID string) (string, error) {
	token, err := internal.NewCSRFToken()
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(identityID), internal.DigestToken(token), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return token, nil
}

// Verify compares presented with the stored token for identityID.
func (s *Store) Verify(ctx context.Context, identityID, presented string, mode Mode) error {
	stored, err := s.redis.Get(ctx, s.key(identityID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	hasStored := err == nil

	if mode == ModeLogout && !hasStored {
		return nil
	}
	if presented == "" {
		return ErrMissing
	}
	if !hasStored || !internal.EqualDigest(stored, internal.DigestToken(presented)) {
		return ErrInvalid
	}
	return nil
}

// Revoke deletes the identity's stored token.
func (s *Store) Revoke(ctx context.Context, identityID string) error {
	if err := s.redis.Del(ctx, s.key(identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
