package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
)

// RequestLimiter counts one request for key. *authgate.Engine implements it.
type RequestLimiter interface {
	AllowRequest(ctx context.Context, key string) error
}

// ClientIP stores the caller's address on the request context with
// authgate.WithClientIP. With trustProxy set, the first X-Forwarded-For hop
// (or X-Real-IP) wins over the socket address; enable it only behind a proxy
// that overwrites those headers.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authgate.WithClientIP(r.Context(), remoteIP(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit applies limiter to every request, keyed by keyFunc. A nil
// keyFunc keys by the client IP from [ClientIP].
func RateLimit(limiter RequestLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string {
			return authgate.ClientIPFromContext(r.Context())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				key = "unknown"
			}
			if err := limiter.AllowRequest(r.Context(), key); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
