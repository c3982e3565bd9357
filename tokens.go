package authgate

import "github.com/MrEthical07/authgate/jwt"

// jwtTokens adapts jwt.Manager to session.Tokens.
type jwtTokens struct {
	manager *jwt.Manager
}

func (t jwtTokens) IssueAccess(identityID, sessionID string) (string, error) {
	return t.manager.IssueAccess(identityID, sessionID)
}

func (t jwtTokens) IssueRefresh(identityID, sessionID string) (string, error) {
	return t.manager.IssueRefresh(identityID, sessionID)
}

func (t jwtTokens) VerifyRefresh(token string) (string, string, error) {
	claims, err := t.manager.VerifyRefresh(token)
	if err != nil {
		return "", "", err
	}
	return claims.UID, claims.SID, nil
}

func (t jwtTokens) VerifyAccess(token string) (string, string, error) {
	claims, err := t.manager.VerifyAccess(token)
	if err != nil {
		return "", "", err
	}
	return claims.UID, claims.SID, nil
}
