package auth

import "context"

type contextKey string

const contextKeyIdentity contextKey = "auth.identity"

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Subject  string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// IdentityFromContext extracts the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// ActorFromContext returns the username recorded in audit history, or
// "system" for unauthenticated background work.
func ActorFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.Username != "" {
		return id.Username
	}
	return "system"
}
