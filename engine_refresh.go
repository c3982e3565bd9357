package authgate

import (
	"context"
	"errors"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/session"
)

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		Rotate: e.sessionStore.RotateRefresh,
	}
}

// RefreshAccess exchanges a refresh token for a new access token and slides
// the session lifetime forward. With rotation on (the default) the returned
// refresh token replaces the presented one, and presenting a rotated-out
// token against the live session revokes that session.
//
// Every rejection is [ErrSessionExpired]; the wrapped chain keeps the reason.
func (e *Engine) RefreshAccess(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case internalflows.RefreshFailureNone:
	case internalflows.RefreshFailureMissing:
		e.metricInc(MetricRefreshFailure)
		return nil, wrapf(ErrSessionExpired, "refresh token missing")
	case internalflows.RefreshFailureReused:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", "", res.Err, nil)
		return nil, res.Err
	case internalflows.RefreshFailureExpired:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", res.Err, nil)
		return nil, res.Err
	default:
		e.metricInc(MetricRefreshFailure)
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", err, nil)
		return nil, err
	}

	rot := res.Rotation
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, rot.Metadata.IdentityID, rot.Metadata.SessionID, nil, func() map[string]string {
		if rot.Rotated {
			return map[string]string{"rotated": "true"}
		}
		return nil
	})

	return &RefreshResult{
		IdentityID:   rot.Metadata.IdentityID,
		Session:      sessionInfo(rot.Metadata),
		AccessToken:  rot.AccessToken,
		RefreshToken: rot.RefreshToken,
		Rotated:      rot.Rotated,
	}, nil
}

// RefreshCSRF issues a new CSRF token for the principal's identity,
// replacing any previous one.
func (e *Engine) RefreshCSRF(ctx context.Context, p *Principal) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if p == nil || p.Identity.ID == "" {
		return "", ErrUnauthenticated
	}

	token, err := e.csrfStore.Issue(ctx, p.Identity.ID)
	if err != nil {
		return "", backendError(err)
	}

	e.metricInc(MetricCSRFIssued)
	e.emitAudit(ctx, auditEventCSRFRefreshed, true, p.Identity.ID, p.SessionID, nil, nil)
	return token, nil
}

// IsRefreshReuse reports whether err came from presenting a refresh token
// that had already been rotated out.
func IsRefreshReuse(err error) bool {
	return errors.Is(err, session.ErrRefreshReused)
}
