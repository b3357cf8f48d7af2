// Package settings exposes runtime key/value settings over the API and
// shares the settings repository with other modules.
package settings

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// TopicChanged is published after a setting is written or removed.
const TopicChanged = "settings.changed"

// SystemPrefix marks keys owned by the server itself. They are readable
// through the API but cannot be written or removed there.
const SystemPrefix = "system."

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the settings plugin.
type Module struct {
	logger *zap.Logger
	bus    plugin.EventBus
	repo   services.SettingsRepository
}

// New creates a new settings module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "settings",
		Version:     "0.1.0",
		Description: "Runtime settings",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	repo, err := services.NewSQLiteSettingsRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.repo = repo
	m.logger.Info("settings module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Repository returns the settings store for modules that keep state in it.
func (m *Module) Repository() services.SettingsRepository {
	return m.repo
}

func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	all, err := m.repo.List(ctx, "")
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"keys": fmt.Sprint(len(all))},
	}
}

// ValidKey reports whether key is an acceptable setting name: lower case
// letters, digits, dots, dashes and underscores, at most 128 characters.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func isSystemKey(key string) bool {
	return strings.HasPrefix(key, SystemPrefix)
}

func (m *Module) publish(ctx context.Context, change models.Change) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{Topic: TopicChanged, Source: "settings", Payload: change})
}
