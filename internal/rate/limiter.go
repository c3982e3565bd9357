package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is one fixed window: at most Limit hits per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// Decision is the outcome of a single hit against a window.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int
	RetryAfter time.Duration
}

// KEYS: counter
// ARGV: window ms
// Returns the count after this hit and the window's remaining ms. A counter
// found without a TTL gets the window again.
const hitScript = `
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// Limiter enforces fixed-window limits using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ag"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(scope, identifier string) string {
	return l.prefix + ":rl:" + scope + ":" + identifier
}

// Allow records one hit for scope/identifier and reports whether it fits the
// window. A denied decision carries the time until the window resets.
func (l *Limiter) Allow(ctx context.Context, scope, identifier string, policy Policy) (Decision, error) {
	if !policy.Enabled() {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	count, ttl, err := l.hit(ctx, l.key(scope, identifier), policy.Window)
	if err != nil {
		return Decision{}, err
	}

	if count <= int64(policy.Limit) {
		return Decision{
			Allowed:   true,
			Count:     count,
			Remaining: policy.Limit - int(count),
		}, nil
	}
	return Decision{
		Allowed:    false,
		Count:      count,
		RetryAfter: ttl,
	}, nil
}

// Reset clears the counter for scope/identifier.
func (l *Limiter) Reset(ctx context.Context, scope, identifier string) error {
	if err := l.redis.Del(ctx, l.key(scope, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// hit applies one INCR to key in a single round trip and returns the new
// count with the time left in the window.
func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := hitLua.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
