package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authgate"
)

// Authenticator resolves an access token. *authgate.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*authgate.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [RequireAuth].
func PrincipalFromContext(ctx context.Context) (*authgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authgate.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p *authgate.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// RequireAuth reads the access cookie and rejects the request unless it
// names the identity's live session. A superseded session also clears every
// credential cookie, so the browser stops replaying dead tokens.
func RequireAuth(auth Authenticator, cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, authgate.ErrUnauthenticated)
				return
			}

			p, err := auth.Authenticate(r.Context(), cookies.Read(r, cookies.AccessName))
			if err != nil {
				if errors.Is(err, authgate.ErrSessionSuperseded) {
					cookies.ClearAll(w)
				}
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole admits only principals whose role equals role. It must run
// after [RequireAuth].
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, authgate.ErrUnauthenticated)
				return
			}
			if p.Identity.Role != role {
				WriteError(w, authgate.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
