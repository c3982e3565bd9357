package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrIdentityCacheRedisUnavailable = errors.New("identity cache redis unavailable")

// CachedIdentity is the sanitized identity kept in the read-through cache.
type CachedIdentity struct {
	ID        string
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

type IdentityCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewIdentityCache(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *IdentityCache {
	if prefix == "" {
		prefix = "ag"
	}
	return &IdentityCache{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *IdentityCache) key(identityID string) string {
	return c.prefix + ":user:" + identityID
}

// Get returns the cached identity, or nil on a miss. A corrupt entry is
// dropped and reported as a miss.
func (c *IdentityCache) Get(ctx context.Context, identityID string) (*CachedIdentity, error) {
	data, err := c.redis.Get(ctx, c.key(identityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIdentityCacheRedisUnavailable, err)
	}

	identity, err := decodeCachedIdentity(data)
	if err != nil {
		_ = c.redis.Del(ctx, c.key(identityID)).Err()
		return nil, nil
	}
	return identity, nil
}

// Set caches identity for the configured TTL.
func (c *IdentityCache) Set(ctx context.Context, identity *CachedIdentity) error {
	data, err := encodeCachedIdentity(identity)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(identity.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityCacheRedisUnavailable, err)
	}
	return nil
}

// Invalidate drops the cached identity.
func (c *IdentityCache) Invalidate(ctx context.Context, identityID string) error {
	if err := c.redis.Del(ctx, c.key(identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityCacheRedisUnavailable, err)
	}
	return nil
}
