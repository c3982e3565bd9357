package authgate

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "missing access secret",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = nil
			},
		},
		{
			name: "short refresh secret",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = []byte("short")
			},
		},
		{
			name: "identical secrets",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...)
			},
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 2 * time.Minute
			},
		},
		{
			name: "prefix with colon",
			mutate: func(c *Config) {
				c.Session.RedisPrefix = "a:b"
			},
		},
		{
			name: "reuse revocation without rotation",
			mutate: func(c *Config) {
				c.Session.RotateRefreshTokens = false
			},
		},
		{
			name: "rotation off entirely",
			mutate: func(c *Config) {
				c.Session.RotateRefreshTokens = false
				c.Session.RevokeOnRefreshReuse = false
			},
			wantValid: true,
		},
		{
			name: "zero csrf ttl",
			mutate: func(c *Config) {
				c.CSRF.TTL = 0
			},
		},
		{
			name: "half configured rate policy",
			mutate: func(c *Config) {
				c.RateLimit.Global = RatePolicy{Limit: 10}
			},
		},
		{
			name: "disabled rate policy",
			mutate: func(c *Config) {
				c.RateLimit.Global = RatePolicy{}
			},
			wantValid: true,
		},
		{
			name: "unknown password algorithm",
			mutate: func(c *Config) {
				c.Password.Algorithm = "md5"
			},
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Algorithm = PasswordArgon2id
				c.Password.Memory = 1024
			},
		},
		{
			name: "samesite none without secure",
			mutate: func(c *Config) {
				c.Cookies.SameSite = http.SameSiteNoneMode
				c.Cookies.Secure = false
			},
		},
		{
			name: "insecure cookies for local dev",
			mutate: func(c *Config) {
				c.Cookies.Secure = false
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "AccessSecret") {
		t.Fatalf("expected AccessSecret error, got %v", err)
	}
	if cfg.Cookies.SameSite != http.SameSiteStrictMode || !cfg.Cookies.Secure {
		t.Fatal("cookies must default to Secure and SameSite=Strict")
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.Session.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected lifetimes: access=%s session=%s", cfg.JWT.AccessTTL, cfg.Session.TTL)
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.AccessSecret[0] = 'z'

	if cfg.JWT.AccessSecret[0] == 'z' {
		t.Fatal("clone must not share secret bytes")
	}
}
