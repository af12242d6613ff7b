package shared

import "context"

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string
	Token  string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the caller in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the caller from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// UserIDFromContext returns the caller id or an empty string.
func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}
