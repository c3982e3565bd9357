package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/csrf"
)

// CSRFVerifier checks a presented double-submit token. *authgate.Engine
// implements it.
type CSRFVerifier interface {
	VerifyCSRF(ctx context.Context, identityID, presented string, relaxed bool) error
}

// CSRFOptions tunes [RequireCSRF].
type CSRFOptions struct {
	// Relaxed admits identities that hold no stored token. Logout uses it.
	Relaxed bool
	// HeaderName defaults to X-CSRF-Token.
	HeaderName string
}

// RequireCSRF compares the CSRF header with the principal's stored token on
// every method except GET, HEAD and OPTIONS. It must run after [RequireAuth].
func RequireCSRF(verifier CSRFVerifier, opts CSRFOptions) func(http.Handler) http.Handler {
	header := opts.HeaderName
	if header == "" {
		header = csrf.HeaderName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, authgate.ErrUnauthenticated)
				return
			}

			if err := verifier.VerifyCSRF(r.Context(), p.Identity.ID, r.Header.Get(header), opts.Relaxed); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
