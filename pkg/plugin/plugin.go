// Package plugin defines the contracts shared by the AIMS server and its
// modules: plugin lifecycle, HTTP routes, persistence, configuration and
// the in-process event bus.
package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// API versions accepted by the registry.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// PluginInfo describes a module to the registry.
type PluginInfo struct {
	Name         string   // Unique identifier (e.g., "inventory", "history").
	Version      string   // Semantic version of the module.
	Description  string   // Human-readable summary.
	Dependencies []string // Names of modules that must initialize first.
	Required     bool     // Required modules abort startup on failure instead of being disabled.
	APIVersion   int      // Plugin API version the module was built against.
}

// Dependencies are injected into each module during Init.
type Dependencies struct {
	Config  Config
	Logger  *zap.Logger
	Store   Store
	Bus     EventBus
	Plugins PluginResolver
}

// PluginResolver gives a module access to other registered modules.
type PluginResolver interface {
	Get(name string) (Plugin, bool)
}

// Plugin is implemented by every AIMS module.
type Plugin interface {
	// Info returns static metadata used for registration and ordering.
	Info() PluginInfo

	// Init wires the module to its dependencies. It must not start
	// background work.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts the module down.
	Stop(ctx context.Context) error
}

// Route represents an HTTP route exposed by a module. Path is relative to
// /api/v1/{module}.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}
