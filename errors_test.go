package authgate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/session"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewValidationError("email", "is required"), CodeValidationFailed},
		{ErrUsernameTooShort, CodeValidationFailed},
		{fmt.Errorf("%w: email", ErrDuplicateIdentity), CodeDuplicateIdentity},
		{ErrInvalidCredentials, CodeInvalidCredentials},
		{ErrUnauthenticated, CodeUnauthenticated},
		{ErrSessionSuperseded, CodeSessionSuperseded},
		{fmt.Errorf("%w: %w", session.ErrSessionExpired, session.ErrRefreshReused), CodeSessionExpired},
		{ErrCSRFMissing, CodeCSRFMissing},
		{ErrCSRFInvalid, CodeCSRFInvalid},
		{ErrLinkExpired, CodeLinkExpired},
		{&RateLimitError{Scope: "login", RetryAfter: time.Second}, CodeRateLimited},
		{ErrForbidden, CodeForbidden},
		{errors.New("boom"), CodeInternal},
		{backendError(fmt.Errorf("%w: dial", rate.ErrRedisUnavailable)), CodeInternal},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestBackendErrorClassifiesRedis(t *testing.T) {
	redisErr := backendError(fmt.Errorf("%w: connection refused", session.ErrRedisUnavailable))
	if !errors.Is(redisErr, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", redisErr)
	}

	other := backendError(errors.New("disk full"))
	if !errors.Is(other, ErrInternal) || errors.Is(other, ErrRedisUnavailable) {
		t.Fatalf("expected ErrInternal only, got %v", other)
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "is required", "email": "is required"}}
	msg := err.Error()
	if strings.Index(msg, "email") > strings.Index(msg, "password") {
		t.Fatalf("fields must be sorted: %q", msg)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("ValidationError must unwrap to ErrValidation")
	}
}

func TestValidateUsesJSONNames(t *testing.T) {
	err := Validate(registrationInput{Username: "x!", Email: "nope", Password: "123"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"username", "email", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing field %q in %v", field, verr.Fields)
		}
	}
	if err := Validate(registrationInput{Username: "ok_name", Email: "a@b.co", Password: "12345678"}); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}
