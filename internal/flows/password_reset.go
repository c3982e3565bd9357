package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/stores"
)

// ForgotResult reports whether a reset link was staged. Unknown emails are
// not an error.
type ForgotResult struct {
	Err      error
	Staged   bool
	Token    string
	Identity *identity.Identity
}

// ResetFailureKind classifies reset confirmation failures.
type ResetFailureKind int

const (
	ResetFailureNone ResetFailureKind = iota
	ResetFailurePassword
	ResetFailureExpired
	ResetFailureBackend
)

// ResetResult carries the affected identity or a classified failure.
type ResetResult struct {
	Failure    ResetFailureKind
	Err        error
	IdentityID string
}

// PasswordResetDeps captures forgot/reset dependencies.
type PasswordResetDeps struct {
	FindByEmail        func(ctx context.Context, email string) (*identity.Identity, error)
	Stage              func(ctx context.Context, digest, identityID string) error
	Consume            func(ctx context.Context, digest string) (*stores.ResetTicket, error)
	Restore            func(ctx context.Context, digest string, ticket *stores.ResetTicket) error
	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, identityID, passwordHash string) error
	// InvalidateCache drops the cached identity after a successful reset.
	InvalidateCache func(ctx context.Context, identityID string) error
	Warn            func(msg string, args ...any)
}

// RunForgotPassword stages a reset link for email when it names an identity.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) ForgotResult {
	ident, err := deps.FindByEmail(ctx, identity.Normalize(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ForgotResult{}
		}
		return ForgotResult{Err: err}
	}

	plain, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return ForgotResult{Err: err}
	}
	if err := deps.Stage(ctx, digest, ident.ID); err != nil {
		return ForgotResult{Err: err}
	}

	return ForgotResult{Staged: true, Token: plain, Identity: ident}
}

// RunResetPassword consumes a reset link and stores the new password digest.
// The link is restored with its remaining lifetime when the update fails.
// Sessions are left alone.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) ResetResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if newPassword == "" {
		return ResetResult{Failure: ResetFailurePassword}
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return ResetResult{Failure: ResetFailurePassword, Err: err}
	}

	if token == "" {
		return ResetResult{Failure: ResetFailureExpired}
	}
	digest := internal.DigestToken(token)

	ticket, err := deps.Consume(ctx, digest)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) || errors.Is(err, stores.ErrRecordCorrupt) {
			return ResetResult{Failure: ResetFailureExpired, Err: err}
		}
		return ResetResult{Failure: ResetFailureBackend, Err: err}
	}

	if err := deps.UpdatePasswordHash(ctx, ticket.IdentityID, hash); err != nil {
		if restoreErr := deps.Restore(ctx, digest, ticket); restoreErr != nil {
			deps.Warn("password reset token restore failed", "identity_id", ticket.IdentityID, "error", restoreErr)
		}
		if errors.Is(err, identity.ErrNotFound) {
			return ResetResult{Failure: ResetFailureExpired, Err: err, IdentityID: ticket.IdentityID}
		}
		return ResetResult{Failure: ResetFailureBackend, Err: err, IdentityID: ticket.IdentityID}
	}

	if deps.InvalidateCache != nil {
		if err := deps.InvalidateCache(ctx, ticket.IdentityID); err != nil {
			deps.Warn("identity cache invalidate failed", "identity_id", ticket.IdentityID, "error", err)
		}
	}
	return ResetResult{IdentityID: ticket.IdentityID}
}
