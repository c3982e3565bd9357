package authgate

import (
	"context"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
)

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	ttl := e.config.Verification.ResetTTL
	deps := internalflows.PasswordResetDeps{
		FindByEmail: e.identities.GetByEmail,
		Stage: func(ctx context.Context, digest, identityID string) error {
			return e.resets.Stage(ctx, digest, identityID, ttl)
		},
		Consume:            e.resets.Consume,
		Restore:            e.resets.Restore,
		HashPassword:       e.hasher.Hash,
		UpdatePasswordHash: e.identities.UpdatePasswordHash,
		Warn:               e.warn,
	}
	if e.identityCache != nil {
		deps.InvalidateCache = e.identityCache.Invalidate
	}
	return deps
}

// ForgotPassword emails a reset link when email names an identity. The
// result is nil either way, so callers cannot learn which emails exist.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := Validate(emailInput{Email: email}); err != nil {
		return err
	}

	res := e.flows.ForgotPassword(ctx, email)
	if res.Err != nil {
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	if !res.Staged {
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{"matched": "false"}
		})
		return nil
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, res.Identity.ID, "", nil, nil)
	msg, err := e.templates.PasswordReset(res.Identity.Email, res.Token)
	if err != nil {
		return backendError(err)
	}
	if !e.mailer.Send(ctx, msg) {
		e.logger.Warn("password reset email dropped", "queue", "full")
	}
	return nil
}

// ResetPassword consumes a reset link and replaces the identity's password.
// A link works once; an unknown, expired or used link fails with
// [ErrLinkExpired]. Existing sessions are left alone.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := Validate(passwordInput{Password: newPassword}); err != nil {
		return err
	}

	res := e.flows.ResetPassword(ctx, token, newPassword)
	switch res.Failure {
	case internalflows.ResetFailureNone:
	case internalflows.ResetFailurePassword:
		e.metricInc(MetricPasswordResetConfirmFailure)
		return passwordValidationError(res.Err)
	case internalflows.ResetFailureExpired:
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, res.IdentityID, "", ErrLinkExpired, nil)
		return ErrLinkExpired
	default:
		e.metricInc(MetricPasswordResetConfirmFailure)
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, res.IdentityID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirmed, true, res.IdentityID, "", nil, nil)
	return nil
}
