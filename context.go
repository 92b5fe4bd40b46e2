package authcore

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's source address to ctx. The Engine uses
// it for per-address rate limiting and audit events. Operations called
// without it skip the address limiter.
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
