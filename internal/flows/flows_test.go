package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/session"
)

func TestRunAuthenticateOrder(t *testing.T) {
	calls := []string{}
	deps := AuthenticateDeps{
		VerifyAccess: func(string) (string, string, error) {
			calls = append(calls, "verify")
			return "u1", "s1", nil
		},
		IsLive: func(context.Context, string, string) (bool, error) {
			calls = append(calls, "live")
			return false, nil
		},
		LoadIdentity: func(context.Context, string) (*identity.Identity, error) {
			calls = append(calls, "load")
			return nil, nil
		},
	}

	res := RunAuthenticate(context.Background(), "tok", deps)
	if res.Failure != AuthenticateFailureSuperseded {
		t.Fatalf("expected superseded, got %v", res.Failure)
	}
	if len(calls) != 2 || calls[1] != "live" {
		t.Fatalf("identity must not load for a dead session, calls=%v", calls)
	}

	if res := RunAuthenticate(context.Background(), "", deps); res.Failure != AuthenticateFailureUnauthenticated {
		t.Fatalf("expected unauthenticated for empty token, got %v", res.Failure)
	}
}

func TestRunAuthenticateCacheFailureFallsBackToStore(t *testing.T) {
	var warned, cached bool
	deps := AuthenticateDeps{
		VerifyAccess: func(string) (string, string, error) { return "u1", "s1", nil },
		IsLive:       func(context.Context, string, string) (bool, error) { return true, nil },
		CachedIdentity: func(context.Context, string) (*identity.Public, error) {
			return nil, errors.New("redis down")
		},
		CacheIdentity: func(context.Context, *identity.Public) error {
			cached = true
			return nil
		},
		LoadIdentity: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", Username: "alice", PasswordHash: "secret"}, nil
		},
		Warn: func(string, ...any) { warned = true },
	}

	res := RunAuthenticate(context.Background(), "tok", deps)
	if res.Failure != AuthenticateFailureNone || res.Identity == nil || res.Identity.Username != "alice" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !warned || !cached || res.CacheHit {
		t.Fatalf("warned=%v cached=%v hit=%v", warned, cached, res.CacheHit)
	}
}

func TestRunAuthenticateMissingIdentity(t *testing.T) {
	deps := AuthenticateDeps{
		VerifyAccess: func(string) (string, string, error) { return "u1", "s1", nil },
		IsLive:       func(context.Context, string, string) (bool, error) { return true, nil },
		LoadIdentity: func(context.Context, string) (*identity.Identity, error) { return nil, identity.ErrNotFound },
	}
	if res := RunAuthenticate(context.Background(), "tok", deps); res.Failure != AuthenticateFailureUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", res.Failure)
	}
}

func TestRunRefreshClassifiesErrors(t *testing.T) {
	cases := []struct {
		err  error
		want RefreshFailureKind
	}{
		{errors.Join(session.ErrSessionExpired, session.ErrRefreshReused), RefreshFailureReused},
		{errors.Join(session.ErrSessionExpired, session.ErrSuperseded), RefreshFailureExpired},
		{session.ErrRedisUnavailable, RefreshFailureBackend},
	}
	for _, tc := range cases {
		deps := RefreshDeps{Rotate: func(context.Context, string) (*session.Rotation, error) { return nil, tc.err }}
		if got := RunRefresh(context.Background(), "r", deps).Failure; got != tc.want {
			t.Fatalf("error %v: got %v, want %v", tc.err, got, tc.want)
		}
	}
	if got := RunRefresh(context.Background(), "", RefreshDeps{}).Failure; got != RefreshFailureMissing {
		t.Fatalf("expected missing, got %v", got)
	}
}

func TestRunResetPasswordRestoresOnUpdateFailure(t *testing.T) {
	var restored *stores.ResetTicket
	deps := PasswordResetDeps{
		HashPassword: func(p string) (string, error) { return "h:" + p, nil },
		Consume: func(context.Context, string) (*stores.ResetTicket, error) {
			return &stores.ResetTicket{IdentityID: "u1", Remaining: time.Minute}, nil
		},
		Restore: func(_ context.Context, _ string, ticket *stores.ResetTicket) error {
			restored = ticket
			return nil
		},
		UpdatePasswordHash: func(context.Context, string, string) error { return errors.New("db down") },
	}

	res := RunResetPassword(context.Background(), "tok", "new-password", deps)
	if res.Failure != ResetFailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
	if restored == nil || restored.Remaining != time.Minute {
		t.Fatalf("expected ticket restore with remaining ttl, got %+v", restored)
	}
}

func TestRunResetPasswordRejectsEmptyPasswordBeforeConsume(t *testing.T) {
	deps := PasswordResetDeps{
		Consume: func(context.Context, string) (*stores.ResetTicket, error) {
			t.Fatal("consume must not run")
			return nil, nil
		},
	}
	if res := RunResetPassword(context.Background(), "tok", "", deps); res.Failure != ResetFailurePassword {
		t.Fatalf("expected password failure, got %v", res.Failure)
	}
}

func TestRunLoginUnknownEmailSpendsDummyHash(t *testing.T) {
	var verified []string
	deps := LoginDeps{
		FindByEmail: func(context.Context, string) (*identity.Identity, error) { return nil, identity.ErrNotFound },
		VerifyPassword: func(_, hash string) (bool, error) {
			verified = append(verified, hash)
			return false, nil
		},
		DummyHash: "dummy",
	}
	res := RunLogin(context.Background(), "x@example.com", "pw", "1.2.3.4", deps)
	if res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", res.Failure)
	}
	if len(verified) != 1 || verified[0] != "dummy" {
		t.Fatalf("expected one dummy verification, got %v", verified)
	}
}

func TestRunVerifyRegistrationDuplicateUsernameDiscardsStage(t *testing.T) {
	var discarded bool
	deps := RegistrationDeps{
		LoadStage: func(context.Context, string) (*stores.StagedRegistration, error) {
			return &stores.StagedRegistration{Username: "bob", Email: "bob@example.com", PasswordHash: "h"}, nil
		},
		FindByEmail:    func(context.Context, string) (*identity.Identity, error) { return nil, identity.ErrNotFound },
		CreateIdentity: func(context.Context, *identity.Identity) error { return identity.ErrDuplicateUsername },
		DiscardStage: func(context.Context, string) error {
			discarded = true
			return nil
		},
		MarkConsumed: func(context.Context, string, string) error { return nil },
	}
	res := RunVerifyRegistration(context.Background(), "tok", deps)
	if res.Failure != VerifyFailureDuplicate || !discarded {
		t.Fatalf("failure=%v discarded=%v", res.Failure, discarded)
	}
}

func TestRunVerifyRegistrationRaceReportedAsUsernameConflict(t *testing.T) {
	var discarded bool
	var consumedFor string
	lookups := 0
	winner := &identity.Identity{ID: "u-winner", Username: "carol", Email: "carol@example.com"}
	deps := RegistrationDeps{
		LoadStage: func(context.Context, string) (*stores.StagedRegistration, error) {
			return &stores.StagedRegistration{Username: "carol", Email: "carol@example.com", PasswordHash: "h"}, nil
		},
		FindByEmail: func(context.Context, string) (*identity.Identity, error) {
			lookups++
			if lookups == 1 {
				return nil, identity.ErrNotFound
			}
			return winner, nil
		},
		// Postgres reports the first violated unique index, which is the username one.
		CreateIdentity: func(context.Context, *identity.Identity) error { return identity.ErrDuplicateUsername },
		DiscardStage: func(context.Context, string) error {
			discarded = true
			return nil
		},
		MarkConsumed: func(_ context.Context, _, identityID string) error {
			consumedFor = identityID
			return nil
		},
	}

	res := RunVerifyRegistration(context.Background(), "tok", deps)
	if res.Failure != VerifyFailureNone || !res.AlreadyVerified {
		t.Fatalf("failure=%v alreadyVerified=%v err=%v", res.Failure, res.AlreadyVerified, res.Err)
	}
	if discarded {
		t.Fatal("stage must survive a lost verification race")
	}
	if consumedFor != "u-winner" {
		t.Fatalf("expected stage consumed for the winner, got %q", consumedFor)
	}
}

func TestRunVerifyRegistrationRelookupFailureIsBackend(t *testing.T) {
	lookups := 0
	deps := RegistrationDeps{
		LoadStage: func(context.Context, string) (*stores.StagedRegistration, error) {
			return &stores.StagedRegistration{Username: "dave", Email: "dave@example.com", PasswordHash: "h"}, nil
		},
		FindByEmail: func(context.Context, string) (*identity.Identity, error) {
			lookups++
			if lookups == 1 {
				return nil, identity.ErrNotFound
			}
			return nil, errors.New("db down")
		},
		CreateIdentity: func(context.Context, *identity.Identity) error { return identity.ErrDuplicateEmail },
		DiscardStage: func(context.Context, string) error {
			t.Fatal("discard must not run on backend failure")
			return nil
		},
		MarkConsumed: func(context.Context, string, string) error { return nil },
	}
	if res := RunVerifyRegistration(context.Background(), "tok", deps); res.Failure != VerifyFailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
}

func TestRunLoginRevokesSessionWhenCSRFIssueFails(t *testing.T) {
	var revoked string
	deps := LoginDeps{
		FindByEmail: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", PasswordHash: "h"}, nil
		},
		VerifyPassword: func(string, string) (bool, error) { return true, nil },
		CreateSession: func(context.Context, string) (*session.Issued, error) {
			return &session.Issued{AccessToken: "a", RefreshToken: "r"}, nil
		},
		IssueCSRF: func(context.Context, string) (string, error) { return "", errors.New("redis down") },
		RevokeSession: func(_ context.Context, identityID string) error {
			revoked = identityID
			return nil
		},
		ResetAttempts: func(context.Context, string) error {
			t.Fatal("attempt window must not reset on a failed login")
			return nil
		},
	}

	res := RunLogin(context.Background(), "a@example.com", "pw", "1.2.3.4", deps)
	if res.Failure != LoginFailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
	if res.Session != nil {
		t.Fatal("failed login must not return a session")
	}
	if revoked != "u1" {
		t.Fatalf("expected new session revoked, got %q", revoked)
	}
}

func TestRunLoginRehashesWeakDigest(t *testing.T) {
	var stored, resetKey string
	deps := LoginDeps{
		FindByEmail: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", PasswordHash: "weak"}, nil
		},
		VerifyPassword: func(string, string) (bool, error) { return true, nil },
		CreateSession: func(context.Context, string) (*session.Issued, error) {
			return &session.Issued{}, nil
		},
		IssueCSRF: func(context.Context, string) (string, error) { return "c", nil },
		ResetAttempts: func(_ context.Context, key string) error {
			resetKey = key
			return nil
		},
		NeedsRehash:  func(hash string) bool { return hash == "weak" },
		HashPassword: func(p string) (string, error) { return "strong:" + p, nil },
		UpdatePasswordHash: func(_ context.Context, _ string, hash string) error {
			stored = hash
			return nil
		},
	}

	res := RunLogin(context.Background(), " A@Example.com ", "pw", "1.2.3.4", deps)
	if res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if stored != "strong:pw" || res.Identity.PasswordHash != "strong:pw" {
		t.Fatalf("expected rehash, stored=%q identity=%q", stored, res.Identity.PasswordHash)
	}
	if resetKey != "1.2.3.4:a@example.com" {
		t.Fatalf("unexpected reset key %q", resetKey)
	}
}

func TestRunLoginRehashFailureDoesNotFailLogin(t *testing.T) {
	var warned bool
	deps := LoginDeps{
		FindByEmail: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", PasswordHash: "weak"}, nil
		},
		VerifyPassword:     func(string, string) (bool, error) { return true, nil },
		CreateSession:      func(context.Context, string) (*session.Issued, error) { return &session.Issued{}, nil },
		IssueCSRF:          func(context.Context, string) (string, error) { return "c", nil },
		NeedsRehash:        func(string) bool { return true },
		HashPassword:       func(p string) (string, error) { return "strong", nil },
		UpdatePasswordHash: func(context.Context, string, string) error { return errors.New("db down") },
		Warn:               func(string, ...any) { warned = true },
	}

	res := RunLogin(context.Background(), "a@example.com", "pw", "1.2.3.4", deps)
	if res.Failure != LoginFailureNone || !warned {
		t.Fatalf("failure=%v warned=%v", res.Failure, warned)
	}
	if res.Identity.PasswordHash != "weak" {
		t.Fatalf("identity must keep the stored digest, got %q", res.Identity.PasswordHash)
	}
}

func TestRunResetPasswordInvalidatesCacheOnSuccess(t *testing.T) {
	var invalidated string
	deps := PasswordResetDeps{
		HashPassword: func(p string) (string, error) { return "h:" + p, nil },
		Consume: func(context.Context, string) (*stores.ResetTicket, error) {
			return &stores.ResetTicket{IdentityID: "u7", Remaining: time.Minute}, nil
		},
		UpdatePasswordHash: func(context.Context, string, string) error { return nil },
		InvalidateCache: func(_ context.Context, identityID string) error {
			invalidated = identityID
			return nil
		},
	}
	if res := RunResetPassword(context.Background(), "tok", "new-password", deps); res.Failure != ResetFailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if invalidated != "u7" {
		t.Fatalf("expected cache invalidation for u7, got %q", invalidated)
	}
}
