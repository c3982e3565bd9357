package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/identity"
)

// AuthenticateFailureKind classifies gatekeeper failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureUnauthenticated
	AuthenticateFailureSuperseded
	AuthenticateFailureBackend
)

// AuthenticateResult returns either the resolved principal or a classified failure.
type AuthenticateResult struct {
	Failure    AuthenticateFailureKind
	Err        error
	IdentityID string
	SessionID  string
	Identity   *identity.Public
	CacheHit   bool
}

// AuthenticateDeps captures gatekeeper dependencies.
type AuthenticateDeps struct {
	VerifyAccess func(token string) (identityID, sessionID string, err error)
	IsLive       func(ctx context.Context, identityID, sessionID string) (bool, error)
	// CachedIdentity returns nil on a miss. Nil disables the cache.
	CachedIdentity func(ctx context.Context, identityID string) (*identity.Public, error)
	CacheIdentity  func(ctx context.Context, ident *identity.Public) error
	LoadIdentity   func(ctx context.Context, identityID string) (*identity.Identity, error)
	Warn           func(msg string, args ...any)
}

// RunAuthenticate resolves an access token into the live session's identity.
//
// Order: signature and expiry, then the single-session pointer, then the
// identity (cache first). A cache failure degrades to a store read.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) AuthenticateResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if accessToken == "" {
		return AuthenticateResult{Failure: AuthenticateFailureUnauthenticated}
	}

	identityID, sessionID, err := deps.VerifyAccess(accessToken)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureUnauthenticated, Err: err}
	}

	live, err := deps.IsLive(ctx, identityID, sessionID)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureBackend, Err: err, IdentityID: identityID, SessionID: sessionID}
	}
	if !live {
		return AuthenticateResult{Failure: AuthenticateFailureSuperseded, IdentityID: identityID, SessionID: sessionID}
	}

	if deps.CachedIdentity != nil {
		cached, err := deps.CachedIdentity(ctx, identityID)
		if err != nil {
			deps.Warn("identity cache read failed", "identity_id", identityID, "error", err)
		}
		if cached != nil {
			return AuthenticateResult{
				IdentityID: identityID,
				SessionID:  sessionID,
				Identity:   cached,
				CacheHit:   true,
			}
		}
	}

	ident, err := deps.LoadIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return AuthenticateResult{Failure: AuthenticateFailureUnauthenticated, Err: err, IdentityID: identityID, SessionID: sessionID}
		}
		return AuthenticateResult{Failure: AuthenticateFailureBackend, Err: err, IdentityID: identityID, SessionID: sessionID}
	}

	public := ident.Sanitized()
	if deps.CacheIdentity != nil {
		if err := deps.CacheIdentity(ctx, &public); err != nil {
			deps.Warn("identity cache write failed", "identity_id", identityID, "error", err)
		}
	}

	return AuthenticateResult{
		IdentityID: identityID,
		SessionID:  sessionID,
		Identity:   &public,
	}
}
