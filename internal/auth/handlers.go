package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/login", Handler: m.handleLogin},
		{Method: "GET", Path: "/me", Handler: m.handleMe},
		{Method: "GET", Path: "/users", Handler: m.handleListUsers},
		{Method: "POST", Path: "/users", Handler: m.handleCreateUser},
		{Method: "PUT", Path: "/users/{id}", Handler: m.handleUpdateUser},
		{Method: "DELETE", Path: "/users/{id}", Handler: m.handleDeleteUser},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"token_type"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *services.User `json:"user"`
}

// handleLogin exchanges a username and password for a bearer token.
// Attempts are throttled per client address.
func (m *Module) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !m.limiter.Allow(clientKey(r)) {
		w.Header().Set("Retry-After", "1")
		server.RateLimited(w, "too many login attempts", r.URL.Path)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if req.Username == "" || req.Password == "" {
		server.BadRequest(w, "username and password are required", r.URL.Path)
		return
	}

	u, err := m.users.GetByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		m.logger.Error("failed to load user", zap.Error(err))
		server.InternalError(w, "failed to load user", r.URL.Path)
		return
	}
	if u == nil || u.Disabled ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		m.logger.Info("login rejected", zap.String("username", req.Username))
		server.Unauthorized(w, "invalid credentials", r.URL.Path)
		return
	}

	role, ok := NormalizeRole(u.Role)
	if !ok {
		m.logger.Error("user has unknown role", zap.String("username", u.Username), zap.String("role", u.Role))
		server.Forbidden(w, "account has no valid role", r.URL.Path)
		return
	}

	now := m.now()
	token, expires, err := IssueToken(m.secret, Identity{Subject: u.ID, Username: u.Username, Role: role}, m.ttl, now)
	if err != nil {
		m.logger.Error("failed to issue token", zap.Error(err))
		server.InternalError(w, "failed to issue token", r.URL.Path)
		return
	}
	if err := m.users.TouchLogin(r.Context(), u.ID, now); err != nil {
		m.logger.Warn("failed to record login time", zap.String("username", u.Username), zap.Error(err))
	}
	u.LastLogin = now

	server.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		User:      u,
	})
}

// handleMe returns the account behind the presented token.
func (m *Module) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		server.Unauthorized(w, "not authenticated", r.URL.Path)
		return
	}
	u, err := m.users.Get(r.Context(), id.Subject)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			server.NotFound(w, "account no longer exists", r.URL.Path)
			return
		}
		m.logger.Error("failed to load user", zap.Error(err))
		server.InternalError(w, "failed to load user", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, u)
}

func (m *Module) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := m.users.List(r.Context())
	if err != nil {
		m.logger.Error("failed to list users", zap.Error(err))
		server.InternalError(w, "failed to list users", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, users)
}

type userRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Disabled bool   `json:"disabled"`
}

func (m *Module) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		server.BadRequest(w, "username is required", r.URL.Path)
		return
	}
	role, ok := NormalizeRole(req.Role)
	if !ok {
		server.BadRequest(w, "role must be viewer, operator or admin", r.URL.Path)
		return
	}
	if len(req.Password) < minPasswordLength {
		server.BadRequest(w, "password must be at least 8 characters", r.URL.Path)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		m.logger.Error("failed to hash password", zap.Error(err))
		server.InternalError(w, "failed to create user", r.URL.Path)
		return
	}
	u := &services.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         string(role),
		Disabled:     req.Disabled,
		CreatedAt:    m.now(),
	}
	if err := m.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, services.ErrAlreadyExists) {
			server.Conflict(w, "username already taken", r.URL.Path)
			return
		}
		m.logger.Error("failed to create user", zap.Error(err))
		server.InternalError(w, "failed to create user", r.URL.Path)
		return
	}

	m.publish(r.Context(), TopicUserCreated, m.change(r, "create", u.ID, map[string]any{
		"username": u.Username, "role": u.Role,
	}))
	server.WriteJSON(w, http.StatusCreated, u)
}

// handleUpdateUser changes email, role and disabled flag. A non-empty
// password is re-hashed and stored as well.
func (m *Module) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	role, ok := NormalizeRole(req.Role)
	if !ok {
		server.BadRequest(w, "role must be viewer, operator or admin", r.URL.Path)
		return
	}
	if req.Password != "" && len(req.Password) < minPasswordLength {
		server.BadRequest(w, "password must be at least 8 characters", r.URL.Path)
		return
	}

	u, err := m.users.Get(r.Context(), id)
	if err != nil {
		m.writeUserError(w, r, err)
		return
	}
	if role != RoleAdmin || req.Disabled {
		if last, err := m.isLastAdmin(r, u); err != nil {
			m.writeUserError(w, r, err)
			return
		} else if last {
			server.Conflict(w, "cannot demote or disable the last active admin", r.URL.Path)
			return
		}
	}
	u.Email = req.Email
	u.Role = string(role)
	u.Disabled = req.Disabled
	if err := m.users.Update(r.Context(), u); err != nil {
		m.writeUserError(w, r, err)
		return
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err == nil {
			err = m.users.UpdatePassword(r.Context(), id, hash)
		}
		if err != nil {
			m.writeUserError(w, r, err)
			return
		}
	}

	m.publish(r.Context(), TopicUserUpdated, m.change(r, "update", u.ID, map[string]any{
		"role": u.Role, "disabled": u.Disabled, "password_changed": req.Password != "",
	}))
	server.WriteJSON(w, http.StatusOK, u)
}

func (m *Module) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if caller, ok := IdentityFromContext(r.Context()); ok && caller.Subject == id {
		server.Conflict(w, "cannot delete your own account", r.URL.Path)
		return
	}
	u, err := m.users.Get(r.Context(), id)
	if err != nil {
		m.writeUserError(w, r, err)
		return
	}
	if last, err := m.isLastAdmin(r, u); err != nil {
		m.writeUserError(w, r, err)
		return
	} else if last {
		server.Conflict(w, "cannot delete the last active admin", r.URL.Path)
		return
	}
	if err := m.users.Delete(r.Context(), id); err != nil {
		m.writeUserError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicUserDeleted, m.change(r, "delete", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// isLastAdmin reports whether u is the only enabled admin account.
func (m *Module) isLastAdmin(r *http.Request, u *services.User) (bool, error) {
	if u.Role != string(RoleAdmin) || u.Disabled {
		return false, nil
	}
	n, err := m.users.CountActive(r.Context(), string(RoleAdmin))
	if err != nil {
		return false, err
	}
	return n <= 1, nil
}

func (m *Module) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrNotFound) {
		server.NotFound(w, "user not found", r.URL.Path)
		return
	}
	m.logger.Error("user operation failed", zap.String("path", r.URL.Path), zap.Error(err))
	server.InternalError(w, "user operation failed", r.URL.Path)
}

func (m *Module) change(r *http.Request, action, id string, meta map[string]any) models.Change {
	return models.Change{
		Actor:        ActorFromContext(r.Context()),
		Role:         string(RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "user",
		ResourceID:   id,
		Metadata:     meta,
	}
}

// clientKey identifies the caller for login throttling.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
