package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// consumeResetLua atomically reads and deletes a reset ticket.
// KEYS[1] = ticket key
//
// Returns {identityID, remainingTTLms} or {} when absent.
var consumeResetLua = redis.NewScript(`
local id = redis.call("GET", KEYS[1])
if not id then
  return {}
end
local ttl = redis.call("PTTL", KEYS[1])
redis.call("DEL", KEYS[1])
return {id, ttl}
`)

// ResetTicket is a consumed reset ticket.
type ResetTicket struct {
	IdentityID string
	Remaining  time.Duration
}

type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "ag"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(digest string) string {
	return s.prefix + ":reset:" + digest
}

// Stage stores identityID under digest for ttl.
func (s *PasswordResetStore) Stage(ctx context.Context, digest, identityID string, ttl time.Duration) error {
	if identityID == "" {
		return errors.New("identity id required")
	}
	if err := s.redis.Set(ctx, s.key(digest), identityID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume deletes the ticket and returns what it held. A second call for the
// same digest returns ErrResetNotFound.
func (s *PasswordResetStore) Consume(ctx context.Context, digest string) (*ResetTicket, error) {
	res, err := consumeResetLua.Run(ctx, s.redis, []string{s.key(digest)}).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if len(res) < 2 {
		return nil, ErrResetNotFound
	}

	identityID, ok := res[0].(string)
	if !ok || identityID == "" {
		return nil, fmt.Errorf("%w: invalid reset payload", ErrRecordCorrupt)
	}
	ttl, _ := res[1].(int64)

	return &ResetTicket{
		IdentityID: identityID,
		Remaining:  time.Duration(ttl) * time.Millisecond,
	}, nil
}

// Restore puts a consumed ticket back, e.g. when the password update that
// followed Consume failed. It never overwrites a live ticket.
func (s *PasswordResetStore) Restore(ctx context.Context, digest string, ticket *ResetTicket) error {
	if ticket == nil || ticket.Remaining <= 0 {
		return nil
	}
	if err := s.redis.SetNX(ctx, s.key(digest), ticket.IdentityID, ticket.Remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}
