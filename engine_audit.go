package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/session"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventSessionSuperseded      = "session_superseded"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventCSRFRefreshed          = "csrf_refreshed"
	auditEventCSRFRejected           = "csrf_rejected"
	auditEventLogout                 = "logout"
	auditEventRegistrationRequested  = "registration_requested"
	auditEventRegistrationVerified   = "registration_verified"
	auditEventRegistrationReplay     = "registration_replay"
	auditEventRegistrationFailure    = "registration_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirmed = "password_reset_confirmed"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
)

// AuditErrorCode is the coarse failure reason recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrRefreshMismatch    AuditErrorCode = "refresh_mismatch"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrCSRFMissing        AuditErrorCode = "csrf_missing"
	auditErrCSRFInvalid        AuditErrorCode = "csrf_invalid"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrLinkExpired        AuditErrorCode = "link_expired"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, retryAfter time.Duration) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":       scope,
			"retry_after": retryAfter.Round(time.Second).String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, session.ErrRefreshReused):
		return auditErrRefreshReuse
	case errors.Is(err, session.ErrRefreshMismatch):
		return auditErrRefreshMismatch
	case errors.Is(err, session.ErrRefreshInvalid),
		errors.Is(err, session.ErrSessionCorrupt):
		return auditErrRefreshInvalid
	case errors.Is(err, session.ErrSuperseded),
		errors.Is(err, ErrSessionSuperseded):
		return auditErrSuperseded
	case errors.Is(err, session.ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrCSRFMissing):
		return auditErrCSRFMissing
	case errors.Is(err, ErrCSRFInvalid):
		return auditErrCSRFInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrLinkExpired):
		return auditErrLinkExpired
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRedisUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
