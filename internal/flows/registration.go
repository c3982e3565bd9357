package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/stores"
)

// RegisterFailureKind classifies registration failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureRateLimited
	RegisterFailureDuplicate
	RegisterFailurePassword
	RegisterFailureBackend
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	ClientIP string
}

// RegisterResult carries the plaintext link token or failure metadata.
type RegisterResult struct {
	Failure    RegisterFailureKind
	Err        error
	RetryAfter time.Duration
	// Field names the duplicate column ("email" or "username").
	Field    string
	Token    string
	Username string
	Email    string
}

// VerifyFailureKind classifies email verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureExpired
	VerifyFailureDuplicate
	VerifyFailureBackend
)

// VerifyResult reports the created identity or an idempotent replay.
type VerifyResult struct {
	Failure         VerifyFailureKind
	Err             error
	Identity        *identity.Identity
	AlreadyVerified bool
}

// RegistrationDeps captures registration and verification dependencies.
type RegistrationDeps struct {
	AllowAttempt   func(ctx context.Context, key string) (bool, time.Duration, error)
	FindByEmail    func(ctx context.Context, email string) (*identity.Identity, error)
	FindByUsername func(ctx context.Context, username string) (*identity.Identity, error)
	HashPassword   func(password string) (string, error)
	Stage          func(ctx context.Context, digest string, record *stores.StagedRegistration) error
	LoadStage      func(ctx context.Context, digest string) (*stores.StagedRegistration, error)
	MarkConsumed   func(ctx context.Context, digest, identityID string) error
	DiscardStage   func(ctx context.Context, digest string) error
	CreateIdentity func(ctx context.Context, ident *identity.Identity) error
	DefaultRole    string
	Now            func() time.Time
	Warn           func(msg string, args ...any)
}

func (d *RegistrationDeps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Warn == nil {
		d.Warn = func(string, ...any) {}
	}
}

// RunRegister validates uniqueness, hashes the password and stages the
// registration under the digest of a fresh link token. Nothing durable is
// written until the link is verified.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegistrationDeps) RegisterResult {
	deps.defaults()

	username := identity.Normalize(req.Username)
	email := identity.Normalize(req.Email)

	if deps.AllowAttempt != nil {
		allowed, retryAfter, err := deps.AllowAttempt(ctx, req.ClientIP+":"+email)
		if err != nil {
			return RegisterResult{Failure: RegisterFailureBackend, Err: err}
		}
		if !allowed {
			return RegisterResult{Failure: RegisterFailureRateLimited, RetryAfter: retryAfter}
		}
	}

	if res, taken := checkTaken(ctx, "email", email, deps.FindByEmail); taken {
		return res
	}
	if res, taken := checkTaken(ctx, "username", username, deps.FindByUsername); taken {
		return res
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailurePassword, Err: err}
	}

	plain, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return RegisterResult{Failure: RegisterFailureBackend, Err: err}
	}

	record := &stores.StagedRegistration{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         deps.DefaultRole,
		StagedAt:     deps.Now().UnixMilli(),
	}
	if err := deps.Stage(ctx, digest, record); err != nil {
		return RegisterResult{Failure: RegisterFailureBackend, Err: err}
	}

	return RegisterResult{
		Token:    plain,
		Username: username,
		Email:    email,
	}
}

func checkTaken(
	ctx context.Context,
	field, value string,
	find func(context.Context, string) (*identity.Identity, error),
) (RegisterResult, bool) {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return RegisterResult{Failure: RegisterFailureDuplicate, Field: field}, true
	case errors.Is(err, identity.ErrNotFound):
		return RegisterResult{}, false
	default:
		return RegisterResult{Failure: RegisterFailureBackend, Err: err}, true
	}
}

// RunVerifyRegistration turns a staged registration into an identity.
//
// A link is consumable once. Later presentations within the stage TTL find
// the consumed marker and report AlreadyVerified rather than expiry.
func RunVerifyRegistration(ctx context.Context, token string, deps RegistrationDeps) VerifyResult {
	deps.defaults()

	if token == "" {
		return VerifyResult{Failure: VerifyFailureExpired}
	}
	digest := internal.DigestToken(token)

	record, err := deps.LoadStage(ctx, digest)
	if err != nil {
		if errors.Is(err, stores.ErrRegistrationNotFound) || errors.Is(err, stores.ErrRecordCorrupt) {
			return VerifyResult{Failure: VerifyFailureExpired, Err: err}
		}
		return VerifyResult{Failure: VerifyFailureBackend, Err: err}
	}
	if record.Consumed {
		return VerifyResult{AlreadyVerified: true}
	}

	existing, err := deps.FindByEmail(ctx, record.Email)
	switch {
	case err == nil:
		deps.consume(ctx, digest, existing.ID)
		return VerifyResult{Identity: existing, AlreadyVerified: true}
	case !errors.Is(err, identity.ErrNotFound):
		return VerifyResult{Failure: VerifyFailureBackend, Err: err}
	}

	ident := &identity.Identity{
		Username:     record.Username,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         record.Role,
	}
	if err := deps.CreateIdentity(ctx, ident); err != nil {
		if !errors.Is(err, identity.ErrDuplicate) {
			return VerifyResult{Failure: VerifyFailureBackend, Err: err}
		}
		// Constraint order decides which unique index reports a racing insert,
		// so the email is looked up again before blaming the username.
		winner, findErr := deps.FindByEmail(ctx, record.Email)
		switch {
		case findErr == nil:
			deps.consume(ctx, digest, winner.ID)
			return VerifyResult{Identity: winner, AlreadyVerified: true}
		case !errors.Is(findErr, identity.ErrNotFound):
			return VerifyResult{Failure: VerifyFailureBackend, Err: findErr}
		}
		if deps.DiscardStage != nil {
			if discardErr := deps.DiscardStage(ctx, digest); discardErr != nil {
				deps.Warn("staged registration discard failed", "error", discardErr)
			}
		}
		return VerifyResult{Failure: VerifyFailureDuplicate, Err: err}
	}

	deps.consume(ctx, digest, ident.ID)
	return VerifyResult{Identity: ident}
}

func (d *RegistrationDeps) consume(ctx context.Context, digest, identityID string) {
	if err := d.MarkConsumed(ctx, digest, identityID); err != nil && !errors.Is(err, stores.ErrRegistrationNotFound) {
		d.Warn("staged registration consume failed", "identity_id", identityID, "error", err)
	}
}
