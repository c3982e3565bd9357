package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureExpired
	RefreshFailureReused
	RefreshFailureBackend
)

// RefreshResult carries either the rotation or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Rotation *session.Rotation
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Rotate func(ctx context.Context, refreshToken string) (*session.Rotation, error)
}

// RunRefresh exchanges a refresh token for a new access token (and, with
// rotation on, a new refresh token).
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing}
	}

	rotation, err := deps.Rotate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReused):
			return RefreshResult{Failure: RefreshFailureReused, Err: err}
		case errors.Is(err, session.ErrSessionExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureBackend, Err: err}
		}
	}

	return RefreshResult{Rotation: rotation}
}
