package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

// Options configures a [Server].
type Options struct {
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
	// AdminRole gates /admin routes. Defaults to "admin".
	AdminRole string
}

// Server routes HTTP requests to an engine.
type Server struct {
	engine  *authgate.Engine
	cookies middleware.Cookies
	logger  *slog.Logger
	router  *mux.Router
}

// NewServer builds the router for engine.
func NewServer(engine *authgate.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adminRole := opts.AdminRole
	if adminRole == "" {
		adminRole = "admin"
	}

	s := &Server{
		engine:  engine,
		cookies: middleware.CookiesFromConfig(engine.Config()),
		logger:  logger,
		router:  mux.NewRouter(),
	}

	r := s.router
	r.Use(securityHeaders)
	r.Use(s.accessLog)
	r.Use(middleware.ClientIP(opts.TrustProxy))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}

	requireAuth := middleware.RequireAuth(engine, s.cookies)

	limited := r.NewRoute().Subrouter()
	limited.Use(middleware.RateLimit(engine, nil))

	auth := limited.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/check-username", s.handleCheckUsername).Methods(http.MethodGet)
	auth.HandleFunc("/verify/{token}", s.handleVerify).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh-token", s.handleRefreshToken).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password/{token}", s.handleResetPassword).Methods(http.MethodPost)

	auth.Handle("/refresh-csrf", requireAuth(http.HandlerFunc(s.handleRefreshCSRF))).Methods(http.MethodPost)
	auth.Handle("/me", requireAuth(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	auth.Handle("/logout", requireAuth(
		middleware.RequireCSRF(engine, middleware.CSRFOptions{Relaxed: true})(http.HandlerFunc(s.handleLogout)),
	)).Methods(http.MethodPost)

	admin := limited.PathPrefix("/admin").Subrouter()
	admin.Use(requireAuth)
	admin.Use(middleware.RequireCSRF(engine, middleware.CSRFOptions{}))
	admin.Use(middleware.RequireRole(adminRole))
	admin.HandleFunc("/ping", s.handleAdminPing).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Message: "Not found", Code: "NOT_FOUND"})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// fail writes err and logs it when it maps to a 5xx.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if middleware.StatusCode(err) >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	middleware.WriteError(w, err)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
