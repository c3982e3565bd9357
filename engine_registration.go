package authgate

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/authgate/identity"
	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/password"
)

const minUsernameChars = 3

func (e *Engine) registrationFlowDeps() internalflows.RegistrationDeps {
	ttl := e.config.Verification.RegistrationTTL
	return internalflows.RegistrationDeps{
		AllowAttempt:   e.allowFunc("register", e.config.RateLimit.Register),
		FindByEmail:    e.identities.GetByEmail,
		FindByUsername: e.identities.GetByUsername,
		HashPassword:   e.hasher.Hash,
		Stage: func(ctx context.Context, digest string, record *stores.StagedRegistration) error {
			return e.registrations.Stage(ctx, digest, record, ttl)
		},
		LoadStage: e.registrations.Get,
		MarkConsumed: func(ctx context.Context, digest, identityID string) error {
			return e.registrations.MarkConsumed(ctx, digest, identityID, time.Now())
		},
		DiscardStage:   e.registrations.Discard,
		CreateIdentity: e.identities.Create,
		DefaultRole:    e.config.Verification.DefaultRole,
		Warn:           e.warn,
	}
}

// Register stages a registration and emails a verification link. Nothing
// durable is written until the link is verified with [Engine.VerifyEmail].
//
// A taken email or username fails with [ErrDuplicateIdentity]. The password
// is hashed before staging, so the plaintext never reaches Redis.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := Validate(registrationInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}); err != nil {
		return err
	}

	res := e.flows.Register(ctx, internalflows.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		ClientIP: clientIPFromContext(ctx),
	})
	switch res.Failure {
	case internalflows.RegisterFailureNone:
	case internalflows.RegisterFailureRateLimited:
		e.metricInc(MetricRegistrationRateLimited)
		e.emitRateLimit(ctx, "register", res.RetryAfter)
		return &RateLimitError{Scope: "register", RetryAfter: res.RetryAfter}
	case internalflows.RegisterFailureDuplicate:
		e.metricInc(MetricRegistrationDuplicate)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", "", ErrDuplicateIdentity, func() map[string]string {
			return map[string]string{"field": res.Field}
		})
		return wrapf(ErrDuplicateIdentity, "%s", res.Field)
	case internalflows.RegisterFailurePassword:
		return passwordValidationError(res.Err)
	default:
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", "", err, nil)
		return err
	}

	e.metricInc(MetricRegistrationRequested)
	e.emitAudit(ctx, auditEventRegistrationRequested, true, "", "", nil, nil)

	msg, err := e.templates.Verification(res.Email, res.Username, res.Token)
	if err != nil {
		return backendError(err)
	}
	if !e.mailer.Send(ctx, msg) {
		e.logger.Warn("verification email dropped", "queue", "full")
	}
	return nil
}

// VerifyEmail consumes a verification link and creates the identity.
//
// Presenting the link again while its record lives reports AlreadyVerified;
// an unknown or expired link fails with [ErrLinkExpired].
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.VerifyRegistration(ctx, token)
	switch res.Failure {
	case internalflows.VerifyFailureNone:
	case internalflows.VerifyFailureExpired:
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", "", ErrLinkExpired, nil)
		return nil, ErrLinkExpired
	case internalflows.VerifyFailureDuplicate:
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", "", ErrDuplicateIdentity, nil)
		return nil, wrapf(ErrDuplicateIdentity, "username")
	default:
		e.metricInc(MetricEmailVerificationFailure)
		return nil, backendError(res.Err)
	}

	out := &VerifyResult{AlreadyVerified: res.AlreadyVerified}
	if res.AlreadyVerified {
		e.metricInc(MetricEmailVerificationReplay)
		e.emitAudit(ctx, auditEventRegistrationReplay, true, identityIDOf(res.Identity), "", nil, nil)
		return out, nil
	}

	public := res.Identity.Sanitized()
	out.Identity = &public
	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventRegistrationVerified, true, public.ID, "", nil, nil)
	return out, nil
}

// CheckUsername reports whether username is free. Input shorter than three
// characters fails with [ErrUsernameTooShort] without touching the store.
func (e *Engine) CheckUsername(ctx context.Context, username string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	username = identity.Normalize(username)
	if utf8.RuneCountInString(username) < minUsernameChars {
		return false, ErrUsernameTooShort
	}

	_, err := e.identities.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, identity.ErrNotFound):
		return true, nil
	default:
		return false, backendError(err)
	}
}

func passwordValidationError(err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return NewValidationError("password", "must be at least 8 characters")
	case errors.Is(err, password.ErrPasswordTooLong):
		return NewValidationError("password", "is too long")
	case err == nil:
		return NewValidationError("password", "is required")
	default:
		return backendError(err)
	}
}

func identityIDOf(ident *identity.Identity) string {
	if ident == nil {
		return ""
	}
	return ident.ID
}
