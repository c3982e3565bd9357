package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (r *registerRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *forgotPasswordRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (r *resetPasswordRequest) normalize() {}

type normalizer interface {
	normalize()
}

// decode reads a JSON body into dst, normalizes it and runs its validate
// tags. An empty body decodes as {} so missing fields surface as per-field
// errors.
func decode(r *http.Request, dst normalizer) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return authgate.NewValidationError("request", "must be a JSON object")
	}
	dst.normalize()
	return authgate.Validate(dst)
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

type usernameResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
}

type verifyResponse struct {
	Message  string           `json:"message"`
	Identity *identity.Public `json:"identity,omitempty"`
}

type loginResponse struct {
	Identity  identity.Public      `json:"identity"`
	Session   authgate.SessionInfo `json:"session"`
	CSRFToken string               `json:"csrfToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type meResponse struct {
	Identity identity.Public      `json:"identity"`
	Session  authgate.SessionInfo `json:"session"`
}
