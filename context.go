package authgate

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it to
// key the login and registration rate limits and to stamp audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// ClientIPFromContext returns the address stored by [WithClientIP], or "".
func ClientIPFromContext(ctx context.Context) string {
	return clientIPFromContext(ctx)
}
