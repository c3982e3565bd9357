package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const minSecretBytes = 32

// Config is the complete engine configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	CSRF          CSRFConfig
	Verification  VerificationConfig
	IdentityCache IdentityCacheConfig
	RateLimit     RateLimitConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Cookies       CookieConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing material and lifetimes of access and refresh
// tokens. Both are HS256; the secrets must differ.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	Issuer        string
	Audience      string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session records.
type SessionConfig struct {
	// RedisPrefix namespaces every key the engine writes.
	RedisPrefix string
	// TTL is the sliding lifetime of the session, pointer and refresh digest.
	TTL                  time.Duration
	RotateRefreshTokens  bool
	RevokeOnRefreshReuse bool
}

// CSRFConfig controls double-submit tokens.
type CSRFConfig struct {
	TTL time.Duration
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls registration staging and password reset links.
type VerificationConfig struct {
	RegistrationTTL time.Duration
	ResetTTL        time.Duration
	DefaultRole     string
	// AppBaseURL prefixes the links sent by email, e.g. https://app.example.com.
	AppBaseURL string
}

// IdentityCacheConfig controls the read-through identity cache used by Authenticate.
type IdentityCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RatePolicy is a fixed window: at most Limit requests per Window.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the fixed-window policies. Login and Register are
// keyed by client IP and email; Global by client IP.
type RateLimitConfig struct {
	Enabled  bool
	Login    RatePolicy
	Register RatePolicy
	Global   RatePolicy
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordAlgorithm selects the password hasher built by Builder.
type PasswordAlgorithm string

const (
	PasswordArgon2id PasswordAlgorithm = "argon2id"
	PasswordBcrypt   PasswordAlgorithm = "bcrypt"
)

// PasswordConfig controls password hashing cost.
type PasswordConfig struct {
	Algorithm        PasswordAlgorithm
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	BcryptCost       int
	MaxPasswordBytes int
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig names and scopes the credential cookies set by the HTTP layer.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	CSRFName    string
	Domain      string
	Path        string
	// Secure should only be false for plain-HTTP local development.
	Secure   bool
	SameSite http.SameSite
}

// DefaultConfig returns the production defaults. Secrets are empty and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     5 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:          "ag",
			TTL:                  7 * 24 * time.Hour,
			RotateRefreshTokens:  true,
			RevokeOnRefreshReuse: true,
		},
		CSRF: CSRFConfig{
			TTL: time.Hour,
		},
		Verification: VerificationConfig{
			RegistrationTTL: 5 * time.Minute,
			ResetTTL:        15 * time.Minute,
			DefaultRole:     "user",
		},
		IdentityCache: IdentityCacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Login:    RatePolicy{Limit: 10, Window: time.Minute},
			Register: RatePolicy{Limit: 10, Window: time.Minute},
			Global:   RatePolicy{Limit: 300, Window: 15 * time.Minute},
		},
		Password: PasswordConfig{
			Algorithm:        PasswordArgon2id,
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			BcryptCost:       12,
			MaxPasswordBytes: 1024,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Cookies: CookieConfig{
			AccessName:  "accessToken",
			RefreshName: "refreshToken",
			CSRFName:    "csrfToken",
			Path:        "/",
			Secure:      true,
			SameSite:    http.SameSiteStrictMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < minSecretBytes {
		return fmt.Errorf("JWT AccessSecret must be at least %d bytes", minSecretBytes)
	}
	if len(c.JWT.RefreshSecret) < minSecretBytes {
		return fmt.Errorf("JWT RefreshSecret must be at least %d bytes", minSecretBytes)
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" || strings.Contains(c.Session.RedisPrefix, ":") {
		return errors.New("Session RedisPrefix must be non-empty and must not contain ':'")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.RevokeOnRefreshReuse && !c.Session.RotateRefreshTokens {
		return errors.New("Session RevokeOnRefreshReuse requires RotateRefreshTokens")
	}

	if c.CSRF.TTL <= 0 {
		return errors.New("CSRF TTL must be > 0")
	}

	// Verification
	if c.Verification.RegistrationTTL <= 0 || c.Verification.ResetTTL <= 0 {
		return errors.New("Verification TTLs must be > 0")
	}
	if strings.TrimSpace(c.Verification.DefaultRole) == "" {
		return errors.New("Verification DefaultRole must be set")
	}

	if c.IdentityCache.Enabled && c.IdentityCache.TTL <= 0 {
		return errors.New("IdentityCache TTL must be > 0 when enabled")
	}

	if c.RateLimit.Enabled {
		for name, p := range map[string]RatePolicy{
			"Login":    c.RateLimit.Login,
			"Register": c.RateLimit.Register,
			"Global":   c.RateLimit.Global,
		} {
			if p.Limit < 0 || p.Window < 0 || (p.Limit > 0) != (p.Window > 0) {
				return fmt.Errorf("RateLimit %s needs both Limit and Window, or neither", name)
			}
		}
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordArgon2id:
		if c.Password.Memory < 8*1024 || c.Password.Time < 1 || c.Password.Parallelism < 1 {
			return errors.New("Password argon2id parameters below minimum")
		}
		if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
			return errors.New("Password SaltLength and KeyLength must be >= 16")
		}
	case PasswordBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return fmt.Errorf("Password Algorithm %q unsupported", c.Password.Algorithm)
	}
	if c.Password.MaxPasswordBytes != 0 && c.Password.MaxPasswordBytes < 128 {
		return errors.New("Password MaxPasswordBytes must admit the 128 character request limit")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" || c.Cookies.CSRFName == "" {
		return errors.New("Cookies names must be set")
	}
	if c.Cookies.SameSite == http.SameSiteNoneMode && !c.Cookies.Secure {
		return errors.New("Cookies SameSite=None requires Secure")
	}

	return nil
}
