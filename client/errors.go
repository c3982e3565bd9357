package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authgate"
)

// ErrSessionEnded is joined to errors that ended the local session: a
// superseded session or a failed access renewal.
var ErrSessionEnded = errors.New("client: session ended")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status     int
	Code       string
	Message    string
	Details    map[string]string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("authgate api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("authgate api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Code returns the wire code carried by err, or "".
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func (e *APIError) needsAccessRenewal() bool {
	return e.Status == http.StatusUnauthorized && e.Code == authgate.CodeUnauthenticated
}

func (e *APIError) needsCSRFRenewal() bool {
	return e.Status == http.StatusForbidden &&
		(e.Code == authgate.CodeCSRFMissing || e.Code == authgate.CodeCSRFInvalid)
}

func (e *APIError) endsSession() bool {
	return e.Status == http.StatusUnauthorized &&
		(e.Code == authgate.CodeSessionSuperseded || e.Code == authgate.CodeSessionExpired)
}
