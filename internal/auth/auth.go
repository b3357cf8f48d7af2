// Package auth implements local accounts, bearer-token issuing and the
// role-based access middleware that guards the AIMS API.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Event topics published by the auth module.
const (
	TopicUserCreated = "auth.user.created"
	TopicUserUpdated = "auth.user.updated"
	TopicUserDeleted = "auth.user.deleted"
)

const (
	defaultTokenTTL   = 12 * time.Hour
	minPasswordLength = 8
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the auth plugin.
type Module struct {
	logger     *zap.Logger
	users      services.UserRepository
	bus        plugin.EventBus
	secret     []byte
	ttl        time.Duration
	limiter    *LoginLimiter
	middleware *Middleware
	now        func() time.Time
}

// New creates a new auth module instance.
func New() *Module {
	return &Module{now: func() time.Time { return time.Now().UTC() }}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "auth",
		Version:     "0.1.0",
		Description: "Local accounts, bearer tokens and role checks",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	users, err := services.NewSQLiteUserRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.users = users

	secret := deps.Config.GetString("auth.jwt_secret")
	if secret == "" {
		secret, err = randomSecret(32)
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		m.logger.Warn("auth.jwt_secret not set, using an ephemeral secret; tokens will not survive a restart")
	}
	m.secret = []byte(secret)

	m.ttl = deps.Config.GetDuration("auth.token_ttl")
	if m.ttl <= 0 {
		m.ttl = defaultTokenTTL
	}
	m.limiter = NewLoginLimiter(deps.Config.GetFloat64("auth.login_rate"), deps.Config.GetInt("auth.login_burst"))
	m.middleware = NewMiddleware(m.secret, NewDefaultPolicy(), m.logger)

	if err := m.bootstrap(ctx, deps.Config); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	m.logger.Info("auth module initialized", zap.Duration("token_ttl", m.ttl))
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Health reports whether the user store is reachable.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	n, err := m.users.Count(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"users": fmt.Sprint(n)}}
}

// Middleware returns the request guard. Valid after Init.
func (m *Module) Middleware() *Middleware {
	return m.middleware
}

// bootstrap creates the first admin account when the user table is empty.
// Without auth.bootstrap_password a random password is generated and
// logged once.
func (m *Module) bootstrap(ctx context.Context, cfg plugin.Config) error {
	n, err := m.users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	username := cfg.GetString("auth.bootstrap_user")
	if username == "" {
		username = "admin"
	}
	password := cfg.GetString("auth.bootstrap_password")
	generated := password == ""
	if generated {
		if password, err = randomSecret(12); err != nil {
			return err
		}
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	u := &services.User{Username: username, PasswordHash: hash, Role: string(RoleAdmin)}
	if err := m.users.Create(ctx, u); err != nil {
		return err
	}

	fields := []zap.Field{zap.String("username", username)}
	if generated {
		fields = append(fields, zap.String("password", password))
	}
	m.logger.Warn("created bootstrap admin account", fields...)
	return nil
}

func (m *Module) publish(ctx context.Context, topic string, change models.Change) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "auth",
		Timestamp: m.now(),
		Payload:   change,
	})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
