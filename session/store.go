package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the backing Redis call fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionExpired is the uniform refresh failure. Every rotation failure
// wraps it together with one of the more specific reasons below.
var ErrSessionExpired = errors.New("session expired")

var (
	// ErrRefreshInvalid means the refresh token failed signature or expiry checks.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshMismatch means the stored refresh digest differs from the presented token.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
	// ErrRefreshReused means an already-rotated refresh token was replayed against
	// the live session; the session has been revoked.
	ErrRefreshReused = errors.New("refresh token reused")
	// ErrSuperseded means the active-session pointer no longer names this session.
	ErrSuperseded = errors.New("session superseded")
	// ErrSessionNotFound means the session metadata has expired or been deleted.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCorrupt means the stored metadata blob could not be parsed.
	ErrSessionCorrupt = errors.New("session corrupt")
)

const (
	rotateStatusRotated  int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusInactive int64 = 2
	rotateStatusReused   int64 = 3
	rotateStatusNotFound int64 = 4
	rotateStatusCorrupt  int64 = 5
)

// KEYS: active pointer, refresh digest, new session metadata
// ARGV: session id, metadata blob, refresh digest, ttl ms, session key prefix
const createSessionScript = `
local prior = redis.call("GET", KEYS[1])
if prior and prior ~= ARGV[1] then
  redis.call("DEL", ARGV[5] .. prior)
end
redis.call("SET", KEYS[3], ARGV[2], "PX", ARGV[4])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[4])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
if prior and prior ~= ARGV[1] then
  return prior
end
return ""
`

var createSessionLua = redis.NewScript(createSessionScript)

// KEYS: refresh digest, active pointer, session metadata
// ARGV: presented digest, session id, next digest, timestamp tail, ttl ms, revoke-on-reuse flag
const rotateRefreshScript = `
local stored = redis.call("GET", KEYS[1])
local active = redis.call("GET", KEYS[2])

if not stored or stored ~= ARGV[1] then
  if stored and active == ARGV[2] and ARGV[6] == "1" then
    redis.call("DEL", KEYS[1], KEYS[2], KEYS[3])
    return {3}
  end
  return {1}
end

if active ~= ARGV[2] then
  return {2}
end

local data = redis.call("GET", KEYS[3])
if not data then
  return {4}
end
if string.byte(data, 1) ~= 1 or #data < 27 then
  return {5}
end

local updated = string.sub(data, 1, #data - 16) .. ARGV[4]
redis.call("SET", KEYS[3], updated, "PX", ARGV[5])
redis.call("SET", KEYS[1], ARGV[3], "PX", ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[5])

return {0, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// KEYS: active pointer, refresh digest
// ARGV: session key prefix
const revokeSessionScript = `
local sid = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1], KEYS[2])
if sid then
  redis.call("DEL", ARGV[1] .. sid)
  return sid
end
return ""
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Tokens mints and verifies the signed credentials bound to a session.
type Tokens interface {
	IssueAccess(identityID, sessionID string) (string, error)
	IssueRefresh(identityID, sessionID string) (string, error)
	VerifyRefresh(token string) (identityID, sessionID string, err error)
}

// Options controls key namespace, lifetime and refresh policy.
type Options struct {
	Prefix string
	TTL    time.Duration
	// RotateRefresh issues a new refresh token on every successful renewal.
	RotateRefresh bool
	// RevokeOnReuse revokes the live session when a stale refresh token for it
	// is presented. Only meaningful with RotateRefresh.
	RevokeOnReuse bool
}

// Store is a Redis-backed session store that owns the identity -> active
// session pointer, session metadata and the current refresh digest.
//
//	Docs: docs/session.md
type Store struct {
	redis  redis.UniversalClient
	tokens Tokens
	opts   Options
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, tokens Tokens, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "ag"
	}
	return &Store{
		redis:  client,
		tokens: tokens,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *Store) sessionPrefix() string {
	return s.opts.Prefix + ":sess:"
}

func (s *Store) sessionKey(sessionID string) string {
	return s.sessionPrefix() + sessionID
}

func (s *Store) activeKey(identityID string) string {
	return s.opts.Prefix + ":active:" + identityID
}

func (s *Store) refreshKey(identityID string) string {
	return s.opts.Prefix + ":rt:" + identityID
}

// Create starts a new session for identityID, superseding any prior one.
//
// The prior session's metadata, the refresh digest and the pointer are
// replaced in one script, so IsLive never sees a half-updated state.
//
//	Performance: 1 EVALSHA.
//	Docs: docs/session.md
func (s *Store) Create(ctx context.Context, identityID string) (*Issued, error) {
	if identityID == "" {
		return nil, errors.New("identity id required")
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	refresh, err := s.tokens.IssueRefresh(identityID, sessionID)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(identityID, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	meta := &Metadata{
		SessionID:    sessionID,
		IdentityID:   identityID,
		CreatedAt:    now.UnixMilli(),
		LastActivity: now.UnixMilli(),
		ExpiresAt:    now.Add(s.opts.TTL).UnixMilli(),
	}
	blob, err := Encode(meta)
	if err != nil {
		return nil, err
	}

	prior, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.activeKey(identityID), s.refreshKey(identityID), s.sessionKey(sessionID)},
		sessionID,
		blob,
		internal.DigestToken(refresh),
		s.opts.TTL.Milliseconds(),
		s.sessionPrefix(),
	).Text()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &Issued{
		Metadata:     meta,
		AccessToken:  access,
		RefreshToken: refresh,
		Superseded:   prior,
	}, nil
}

// Touch returns the metadata for sessionID, or nil when it no longer exists.
//
//	Performance: 1 Redis GET.
func (s *Store) Touch(ctx context.Context, sessionID string) (*Metadata, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	meta, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return meta, nil
}

// IsLive reports whether sessionID is the active session of identityID.
//
//	Performance: 1 Redis GET.
func (s *Store) IsLive(ctx context.Context, identityID, sessionID string) (bool, error) {
	active, err := s.ActiveSession(ctx, identityID)
	if err != nil {
		return false, err
	}
	return active != "" && active == sessionID, nil
}

// ActiveSession returns the identity's active session id, or "" if none.
func (s *Store) ActiveSession(ctx context.Context, identityID string) (string, error) {
	active, err := s.redis.Get(ctx, s.activeKey(identityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return active, nil
}

// RotateRefresh renews the access token for the session named by refreshToken.
//
// The store checks, in order, that the stored refresh digest matches, that
// the active pointer still names the session and that metadata still exists.
// On success last-activity and expiry move forward and all three keys get a
// fresh TTL. Any failure wraps [ErrSessionExpired].
//
//	Performance: 1 EVALSHA.
//	Docs: docs/session.md
func (s *Store) RotateRefresh(ctx context.Context, refreshToken string) (*Rotation, error) {
	identityID, sessionID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrRefreshInvalid)
	}

	next := refreshToken
	if s.opts.RotateRefresh {
		next, err = s.tokens.IssueRefresh(identityID, sessionID)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	revokeOnReuse := "0"
	if s.opts.RotateRefresh && s.opts.RevokeOnReuse {
		revokeOnReuse = "1"
	}

	res, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(identityID), s.activeKey(identityID), s.sessionKey(sessionID)},
		internal.DigestToken(refreshToken),
		sessionID,
		internal.DigestToken(next),
		encodeTail(now.UnixMilli(), now.Add(s.opts.TTL).UnixMilli()),
		s.opts.TTL.Milliseconds(),
		revokeOnReuse,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate result", ErrRedisUnavailable)
	}

	status, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate status", ErrRedisUnavailable)
	}

	switch status {
	case rotateStatusRotated:
	case rotateStatusMismatch:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrRefreshMismatch)
	case rotateStatusInactive:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrSuperseded)
	case rotateStatusReused:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrRefreshReused)
	case rotateStatusNotFound:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrSessionNotFound)
	case rotateStatusCorrupt:
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrSessionCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}

	if len(res) < 2 {
		return nil, fmt.Errorf("%w: missing rotated session", ErrRedisUnavailable)
	}
	blob, ok := res[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotated session payload", ErrRedisUnavailable)
	}
	meta, err := Decode([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrSessionCorrupt)
	}

	access, err := s.tokens.IssueAccess(identityID, sessionID)
	if err != nil {
		return nil, err
	}

	return &Rotation{
		Metadata:     meta,
		AccessToken:  access,
		RefreshToken: next,
		Rotated:      next != refreshToken,
	}, nil
}

// Revoke deletes the refresh digest, the active pointer and the active
// session's metadata. It returns the revoked session id, or "" when the
// identity had no active session.
//
//	Performance: 1 EVALSHA.
func (s *Store) Revoke(ctx context.Context, identityID string) (string, error) {
	sid, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.activeKey(identityID), s.refreshKey(identityID)},
		s.sessionPrefix(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// Ping checks Redis reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
