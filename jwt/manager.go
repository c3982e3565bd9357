package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens inside the signed payload.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"

	minSecretBytes = 32
)

var (
	// ErrTokenExpired is returned when a token's signature is valid but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure: bad signature,
	// wrong algorithm, wrong token type, malformed claims.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds signing secrets, lifetimes and the claim checks applied on verify.
//
// Access and refresh tokens are signed with distinct HS256 secrets so a leaked
// access secret cannot forge refresh tokens.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Manager issues and verifies the signed credentials bound to a session.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the signed payload shared by access and refresh tokens.
type Claims struct {
	UID  string    `json:"uid"`
	SID  string    `json:"sid"`
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretBytes)
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretBytes)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// IssueAccess signs a short-lived access token for the session.
func (j *Manager) IssueAccess(uid, sid string) (string, error) {
	return j.issue(uid, sid, TypeAccess, j.config.AccessTTL, j.config.AccessSecret)
}

// IssueRefresh signs a long-lived refresh token for the session.
func (j *Manager) IssueRefresh(uid, sid string) (string, error) {
	return j.issue(uid, sid, TypeRefresh, j.config.RefreshTTL, j.config.RefreshSecret)
}

// VerifyAccess checks signature, expiry and token type. It never touches a store.
func (j *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return j.verify(tokenStr, TypeAccess, j.config.AccessSecret)
}

// VerifyRefresh checks signature, expiry and token type. It never touches a store.
func (j *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return j.verify(tokenStr, TypeRefresh, j.config.RefreshSecret)
}

func (j *Manager) issue(uid, sid string, typ TokenType, ttl time.Duration, secret []byte) (string, error) {
	if uid == "" || sid == "" {
		return "", errors.New("uid and sid are required")
	}

	now := j.now()
	claims := Claims{
		UID:  uid,
		SID:  sid,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
			ID:        uuid.NewString(),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (j *Manager) verify(tokenStr string, want TokenType, secret []byte) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != want || claims.UID == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}

	return claims, nil
}
