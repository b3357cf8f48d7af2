package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/server"
)

// Middleware validates bearer tokens and enforces RBAC.
type Middleware struct {
	Secret []byte
	Policy Policy
	logger *zap.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{Secret: secret, Policy: policy, logger: logger}
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" {
			server.Unauthorized(w, "missing bearer token", r.URL.Path)
			return
		}
		claims, err := ParseJWT(token, m.Secret)
		if err != nil {
			m.logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			server.Unauthorized(w, "invalid or expired token", r.URL.Path)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			server.Forbidden(w, "role "+string(role)+" cannot perform this action", r.URL.Path)
			return
		}
		ctx := WithIdentity(r.Context(), Identity{
			Subject:  claims.Subject,
			Username: claims.Username,
			Role:     role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
