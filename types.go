package authgate

import (
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/session"
)

// RegisterRequest is the input to [Engine.Register]. Username and Email are
// normalized (trimmed, lowercased) before any lookup.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// SessionInfo is the public view of a session record.
type SessionInfo struct {
	ID           string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func sessionInfo(meta *session.Metadata) SessionInfo {
	if meta == nil {
		return SessionInfo{}
	}
	return SessionInfo{
		ID:           meta.SessionID,
		CreatedAt:    time.UnixMilli(meta.CreatedAt).UTC(),
		LastActivity: time.UnixMilli(meta.LastActivity).UTC(),
		ExpiresAt:    time.UnixMilli(meta.ExpiresAt).UTC(),
	}
}

// LoginResult carries the credentials minted by [Engine.Login]. RefreshToken
// and CSRFToken are plaintext and exist only in this value.
type LoginResult struct {
	Identity     identity.Public
	Session      SessionInfo
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	// Superseded is the session displaced by this login, if any.
	Superseded string
}

// Principal is the authenticated caller resolved by [Engine.Authenticate].
type Principal struct {
	Identity  identity.Public
	SessionID string
}

// RefreshResult is returned by [Engine.RefreshAccess]. RefreshToken equals the
// presented token when rotation is disabled.
type RefreshResult struct {
	IdentityID   string
	Session      SessionInfo
	AccessToken  string
	RefreshToken string
	Rotated      bool
}

// VerifyResult is returned by [Engine.VerifyEmail]. Identity is nil when the
// link was replayed after a successful verification.
type VerifyResult struct {
	Identity        *identity.Public
	AlreadyVerified bool
}

// MeResult is the current identity together with its live session.
type MeResult struct {
	Identity identity.Public
	Session  SessionInfo
}
