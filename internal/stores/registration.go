package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRegistrationNotFound         = errors.New("staged registration not found")
	ErrRegistrationRedisUnavailable = errors.New("registration redis unavailable")
)

// StagedRegistration is a registration waiting for its email to be verified.
// Once consumed, the credential fields are cleared and IdentityID names the
// created identity.
type StagedRegistration struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
	IdentityID   string
	Consumed     bool
	StagedAt     int64
}

// markConsumedLua replaces a staged record with its consumed marker while
// keeping the remaining TTL. Returns 0 when the record is gone.
var markConsumedLua = redis.NewScript(`
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
return 1
`)

type RegistrationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRegistrationStore(redisClient redis.UniversalClient, prefix string) *RegistrationStore {
	if prefix == "" {
		prefix = "ag"
	}
	return &RegistrationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RegistrationStore) key(digest string) string {
	return s.prefix + ":verify:" + digest
}

// Stage stores record under digest for ttl.
func (s *RegistrationStore) Stage(ctx context.Context, digest string, record *StagedRegistration, ttl time.Duration) error {
	encoded, err := encodeRegistration(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(digest), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}
	return nil
}

// Get returns the staged record for digest.
func (s *RegistrationStore) Get(ctx context.Context, digest string) (*StagedRegistration, error) {
	data, err := s.redis.Get(ctx, s.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}

	record, err := decodeRegistration(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(digest)).Err()
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	return record, nil
}

// MarkConsumed swaps the staged payload for a consumed marker naming
// identityID. The password digest does not survive this call.
func (s *RegistrationStore) MarkConsumed(ctx context.Context, digest, identityID string, now time.Time) error {
	marker, err := encodeRegistration(&StagedRegistration{
		IdentityID: identityID,
		Consumed:   true,
		StagedAt:   now.UnixMilli(),
	})
	if err != nil {
		return err
	}

	updated, err := markConsumedLua.Run(ctx, s.redis, []string{s.key(digest)}, marker).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}
	if updated == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// Discard deletes the staged record.
func (s *RegistrationStore) Discard(ctx context.Context, digest string) error {
	if err := s.redis.Del(ctx, s.key(digest)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}
	return nil
}
