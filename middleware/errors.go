package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authgate"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	Details    map[string]string `json:"details,omitempty"`
	RetryAfter int               `json:"retryAfter,omitempty"`
}

var publicMessages = map[string]string{
	authgate.CodeValidationFailed:   "Validation failed",
	authgate.CodeDuplicateIdentity:  "Email or username already registered",
	authgate.CodeInvalidCredentials: "Invalid email or password",
	authgate.CodeUnauthenticated:    "Authentication required",
	authgate.CodeSessionSuperseded:  "Session ended by a newer login",
	authgate.CodeSessionExpired:     "Session expired, please log in again",
	authgate.CodeCSRFMissing:        "CSRF token missing",
	authgate.CodeCSRFInvalid:        "CSRF token invalid",
	authgate.CodeLinkExpired:        "Link invalid or expired",
	authgate.CodeRateLimited:        "Too many requests",
	authgate.CodeForbidden:          "Forbidden",
	authgate.CodeInternal:           "Internal server error",
}

// StatusCode maps err onto its HTTP status.
func StatusCode(err error) int {
	switch authgate.ErrorCode(err) {
	case authgate.CodeValidationFailed, authgate.CodeDuplicateIdentity, authgate.CodeLinkExpired:
		return http.StatusBadRequest
	case authgate.CodeInvalidCredentials, authgate.CodeUnauthenticated,
		authgate.CodeSessionSuperseded, authgate.CodeSessionExpired:
		return http.StatusUnauthorized
	case authgate.CodeCSRFMissing, authgate.CodeCSRFInvalid, authgate.CodeForbidden:
		return http.StatusForbidden
	case authgate.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorBody builds the public body for err. Internal errors never leak
// their text.
func NewErrorBody(err error) ErrorBody {
	code := authgate.ErrorCode(err)
	body := ErrorBody{Code: code, Message: publicMessages[code]}

	var verr *authgate.ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Fields
	}
	if errors.Is(err, authgate.ErrUsernameTooShort) {
		body.Details = map[string]string{"username": "must be at least 3 characters"}
	}

	var rl *authgate.RateLimitError
	if errors.As(err, &rl) {
		body.RetryAfter = retryAfterSeconds(rl)
	}
	return body
}

// WriteError writes err as a JSON error response. Rate-limit errors also
// set Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	body := NewErrorBody(err)
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	WriteJSON(w, StatusCode(err), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func retryAfterSeconds(rl *authgate.RateLimitError) int {
	secs := int(math.Ceil(rl.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
