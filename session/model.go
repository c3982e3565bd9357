package session

import "time"

// Metadata is the server-side record of one authenticated browser/device session.
//
// Timestamps are unix milliseconds.
type Metadata struct {
	SessionID    string
	IdentityID   string
	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
}

// LoginTime returns CreatedAt as a time.Time.
func (m *Metadata) LoginTime() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// LastActivityTime returns LastActivity as a time.Time.
func (m *Metadata) LastActivityTime() time.Time {
	return time.UnixMilli(m.LastActivity)
}

// Issued is the result of creating a session: the identifiers plus the freshly
// minted credential pair. RefreshToken is plaintext and is never persisted.
type Issued struct {
	Metadata     *Metadata
	AccessToken  string
	RefreshToken string
	// Superseded is the session id displaced by this login, if any.
	Superseded string
}

// Rotation is the result of a successful refresh.
type Rotation struct {
	Metadata     *Metadata
	AccessToken  string
	RefreshToken string
	Rotated      bool
}
