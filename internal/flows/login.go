package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureBackend
)

// LoginResult carries either the new session or failure metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	RetryAfter time.Duration
	Identity   *identity.Identity
	Session    *session.Issued
	CSRFToken  string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// AllowAttempt counts one attempt against key and reports whether it fits.
	AllowAttempt   func(ctx context.Context, key string) (bool, time.Duration, error)
	FindByEmail    func(ctx context.Context, email string) (*identity.Identity, error)
	VerifyPassword func(password, encodedHash string) (bool, error)
	// DummyHash is verified against when the email is unknown so both paths
	// cost one hash.
	DummyHash     string
	CreateSession func(ctx context.Context, identityID string) (*session.Issued, error)
	IssueCSRF     func(ctx context.Context, identityID string) (string, error)
	// RevokeSession undoes CreateSession when the login cannot complete.
	RevokeSession func(ctx context.Context, identityID string) error
	// ResetAttempts clears the attempt window for key after a success.
	ResetAttempts func(ctx context.Context, key string) error

	// NeedsRehash, HashPassword and UpdatePasswordHash are optional. When all
	// are set, a digest made with weaker settings is replaced on login.
	NeedsRehash        func(encodedHash string) bool
	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, identityID, passwordHash string) error

	Warn func(msg string, args ...any)
}

// RunLogin authenticates email/password and opens a session, superseding any
// prior session of the same identity.
func RunLogin(ctx context.Context, email, pass, clientIP string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	email = identity.Normalize(email)
	attemptKey := clientIP + ":" + email

	if deps.AllowAttempt != nil {
		allowed, retryAfter, err := deps.AllowAttempt(ctx, attemptKey)
		if err != nil {
			return LoginResult{Failure: LoginFailureBackend, Err: err}
		}
		if !allowed {
			return LoginResult{Failure: LoginFailureRateLimited, RetryAfter: retryAfter}
		}
	}

	ident, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return LoginResult{Failure: LoginFailureBackend, Err: err}
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(pass, deps.DummyHash)
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
	}

	ok, err := deps.VerifyPassword(pass, ident.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return LoginResult{Failure: LoginFailureBackend, Err: err}
	}
	if !ok {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Identity: ident}
	}

	issued, err := deps.CreateSession(ctx, ident.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, Identity: ident}
	}

	csrfToken, err := deps.IssueCSRF(ctx, ident.ID)
	if err != nil {
		// The caller gets no cookies, so the new session must not stay live.
		if deps.RevokeSession != nil {
			if revokeErr := deps.RevokeSession(ctx, ident.ID); revokeErr != nil {
				deps.Warn("login rollback failed", "identity_id", ident.ID, "error", revokeErr)
			}
		}
		return LoginResult{Failure: LoginFailureBackend, Err: err, Identity: ident}
	}

	if deps.ResetAttempts != nil {
		if err := deps.ResetAttempts(ctx, attemptKey); err != nil {
			deps.Warn("login attempt reset failed", "identity_id", ident.ID, "error", err)
		}
	}
	rehashIfWeak(ctx, ident, pass, deps)

	return LoginResult{
		Identity:  ident,
		Session:   issued,
		CSRFToken: csrfToken,
	}
}

func rehashIfWeak(ctx context.Context, ident *identity.Identity, pass string, deps LoginDeps) {
	if deps.NeedsRehash == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	if !deps.NeedsRehash(ident.PasswordHash) {
		return
	}
	hash, err := deps.HashPassword(pass)
	if err != nil {
		deps.Warn("password rehash failed", "identity_id", ident.ID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, ident.ID, hash); err != nil {
		deps.Warn("password rehash store failed", "identity_id", ident.ID, "error", err)
		return
	}
	ident.PasswordHash = hash
}
