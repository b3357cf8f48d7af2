package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the AIMS policy: health, login and metrics are
// public, everything else under /api/ needs a token.
func NewDefaultPolicy() Policy {
	return NewPolicy([]string{
		"/api/v1/health",
		"/api/v1/auth/login",
		"/metrics",
	}, nil)
}

// NewPolicy builds a policy with the given exemptions.
func NewPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request. The second result
// is false for paths outside the API.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method
	read := method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions

	switch {
	case strings.HasPrefix(path, "/api/v1/auth/users"):
		return RoleAdmin, true
	case path == "/api/v1/inventory/resync":
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/inventory/import/"):
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/settings"):
		if read {
			return RoleViewer, true
		}
		return RoleAdmin, true
	}

	if strings.HasPrefix(path, "/api/") {
		if read {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}
