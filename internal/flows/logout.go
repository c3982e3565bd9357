package flows

import "context"

// LogoutResult reports the revoked session, if any.
type LogoutResult struct {
	Err       error
	SessionID string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	RevokeSession   func(ctx context.Context, identityID string) (string, error)
	RevokeCSRF      func(ctx context.Context, identityID string) error
	InvalidateCache func(ctx context.Context, identityID string) error
	Warn            func(msg string, args ...any)
}

// RunLogout revokes the identity's session and CSRF token and drops its
// cached identity. Cache invalidation failures are logged, not returned: the
// entry expires on its own and holds no credentials.
func RunLogout(ctx context.Context, identityID string, deps LogoutDeps) LogoutResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	sessionID, err := deps.RevokeSession(ctx, identityID)
	if err != nil {
		return LogoutResult{Err: err}
	}

	if deps.RevokeCSRF != nil {
		if err := deps.RevokeCSRF(ctx, identityID); err != nil {
			return LogoutResult{Err: err, SessionID: sessionID}
		}
	}

	if deps.InvalidateCache != nil {
		if err := deps.InvalidateCache(ctx, identityID); err != nil {
			deps.Warn("identity cache invalidation failed", "identity_id", identityID, "error", err)
		}
	}

	return LogoutResult{SessionID: sessionID}
}
