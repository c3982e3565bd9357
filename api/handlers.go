package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Redis: "down"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Redis: "up"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	err := s.engine.Register(r.Context(), authgate.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, messageResponse{
		Message: "Check your email to verify your account",
	})
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := s.engine.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if errors.Is(err, authgate.ErrUsernameTooShort) {
		middleware.WriteJSON(w, http.StatusBadRequest, usernameResponse{
			Available: false,
			Message:   "Username must be at least 3 characters",
			Code:      authgate.CodeValidationFailed,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, usernameResponse{Available: available})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.VerifyEmail(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.AlreadyVerified {
		middleware.WriteJSON(w, http.StatusOK, verifyResponse{Message: "Email already verified"})
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, verifyResponse{
		Message:  "Email verified",
		Identity: res.Identity,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.cookies.SetAccess(w, res.AccessToken)
	s.cookies.SetRefresh(w, res.RefreshToken)
	s.cookies.SetCSRF(w, res.CSRFToken)
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Identity:  res.Identity,
		Session:   res.Session,
		CSRFToken: res.CSRFToken,
	})
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RefreshAccess(r.Context(), s.cookies.Read(r, s.cookies.RefreshName))
	if err != nil {
		if middleware.StatusCode(err) == http.StatusUnauthorized {
			s.cookies.ClearAll(w)
		}
		s.fail(w, r, err)
		return
	}

	s.cookies.SetAccess(w, res.AccessToken)
	if res.Rotated {
		s.cookies.SetRefresh(w, res.RefreshToken)
	}
	middleware.WriteJSON(w, http.StatusOK, refreshResponse{AccessToken: res.AccessToken})
}

func (s *Server) handleRefreshCSRF(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	token, err := s.engine.RefreshCSRF(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.SetCSRF(w, token)
	middleware.WriteJSON(w, http.StatusOK, csrfResponse{CSRFToken: token})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Message: "If the email is registered, a reset link has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), mux.Vars(r)["token"], req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password updated"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	res, err := s.engine.Me(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{Identity: res.Identity, Session: res.Session})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.Logout(r.Context(), p.Identity.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.cookies.ClearAll(w)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleAdminPing(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "pong"})
}
