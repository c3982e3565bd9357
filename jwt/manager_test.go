package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("access-secret-access-secret-0123456789")
	testRefreshSecret = []byte("refresh-secret-refresh-secret-012345678")
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "authgate",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsWeakConfig(t *testing.T) {
	base := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}

	cases := map[string]func(*Config){
		"short access secret": func(c *Config) { c.AccessSecret = []byte("short") },
		"same secrets":        func(c *Config) { c.RefreshSecret = c.AccessSecret },
		"zero access ttl":     func(c *Config) { c.AccessTTL = 0 },
		"access >= refresh":   func(c *Config) { c.AccessTTL = 2 * time.Hour },
		"leeway too large":    func(c *Config) { c.Leeway = time.Hour },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	access, err := m.IssueAccess("u1", "s1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	claims, err := m.VerifyAccess(access)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	refresh, err := m.IssueRefresh("u1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := m.VerifyRefresh(refresh); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
}

func TestAccessAndRefreshAreNotInterchangeable(t *testing.T) {
	m := newTestManager(t, nil)

	access, _ := m.IssueAccess("u1", "s1")
	refresh, _ := m.IssueRefresh("u1", "s1")

	if _, err := m.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token to fail refresh verification, got %v", err)
	}
	if _, err := m.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
}

func TestVerifyReportsExpiry(t *testing.T) {
	m := newTestManager(t, nil)
	issuedAt := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issuedAt }

	access, err := m.IssueAccess("u1", "s1")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	m.now = time.Now
	if _, err := m.VerifyAccess(access); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithmAndTampering(t *testing.T) {
	m := newTestManager(t, nil)

	claims := Claims{UID: "u1", SID: "s1", Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authgate",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.VerifyAccess(none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}

	access, _ := m.IssueAccess("u1", "s1")
	parts := strings.Split(access, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := m.VerifyAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered signature to be rejected, got %v", err)
	}
}

func TestVerifyChecksIssuerAndAudience(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.Audience = "api" })
	other := newTestManager(t, func(c *Config) { c.Issuer = "someone-else"; c.Audience = "api" })

	token, _ := other.IssueAccess("u1", "s1")
	if _, err := m.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}

	good, _ := m.IssueAccess("u1", "s1")
	if _, err := m.VerifyAccess(good); err != nil {
		t.Fatalf("expected matching audience to pass: %v", err)
	}
}
