package authgate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/csrf"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/session"
)

var (
	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateIdentity is returned by Register for a taken email or username.
	ErrDuplicateIdentity = errors.New("email or username already registered")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated means no valid access token was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionSuperseded means the token names a session displaced by a newer login.
	ErrSessionSuperseded = errors.New("session superseded by a newer login")
	// ErrSessionExpired is the uniform refresh failure. The wrapped chain keeps
	// the internal reason for logs and audit.
	ErrSessionExpired = session.ErrSessionExpired
	// ErrCSRFMissing means a mutating request carried no CSRF header.
	ErrCSRFMissing = csrf.ErrMissing
	// ErrCSRFInvalid means the CSRF header did not match the stored token.
	ErrCSRFInvalid = csrf.ErrInvalid
	// ErrLinkExpired covers unknown, expired and already-used reset links and
	// unknown or expired verification links.
	ErrLinkExpired = errors.New("link invalid or expired")
	// ErrRateLimited is the parent of every *RateLimitError.
	ErrRateLimited = rate.ErrRateLimited
	// ErrForbidden means the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInternal is the public face of unexpected failures.
	ErrInternal = errors.New("internal error")
	// ErrRedisUnavailable wraps ephemeral store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUsernameTooShort is returned by CheckUsername for input under three characters.
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	// ErrEngineNotReady is returned when an Engine was not built by Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports per-field request problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RateLimitError carries how long the caller must wait.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %s", ErrRateLimited.Error(), e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Wire codes returned by ErrorCode. They are stable and shared with clients.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeSessionSuperseded  = "SESSION_SUPERSEDED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeCSRFMissing        = "CSRF_TOKEN_MISSING"
	CodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
	CodeLinkExpired        = "LINK_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL"
)

// ErrorCode maps err to its wire code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUsernameTooShort):
		return CodeValidationFailed
	case errors.Is(err, ErrDuplicateIdentity):
		return CodeDuplicateIdentity
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrSessionSuperseded):
		return CodeSessionSuperseded
	case errors.Is(err, ErrSessionExpired):
		return CodeSessionExpired
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrCSRFMissing):
		return CodeCSRFMissing
	case errors.Is(err, ErrCSRFInvalid):
		return CodeCSRFInvalid
	case errors.Is(err, ErrLinkExpired):
		return CodeLinkExpired
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}

// backendError wraps an infrastructure failure so callers can tell an
// ephemeral store outage from other internal errors.
func backendError(err error) error {
	if isRedisFailure(err) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func isRedisFailure(err error) bool {
	return errors.Is(err, session.ErrRedisUnavailable) ||
		errors.Is(err, csrf.ErrRedisUnavailable) ||
		errors.Is(err, rate.ErrRedisUnavailable) ||
		errors.Is(err, stores.ErrRegistrationRedisUnavailable) ||
		errors.Is(err, stores.ErrResetRedisUnavailable) ||
		errors.Is(err, stores.ErrIdentityCacheRedisUnavailable)
}
