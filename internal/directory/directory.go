// Package directory manages the employees and clients devices are
// deployed to.
package directory

import (
	"context"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Event topics published by the directory module.
const (
	TopicEmployeeChanged = "directory.employee.changed"
	TopicClientChanged   = "directory.client.changed"
)

// AssignmentCounter reports devices still deployed to an employee.
// The inventory module implements it.
type AssignmentCounter interface {
	AssignedCount(ctx context.Context, employeeID string) (int, error)
}

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the directory plugin.
type Module struct {
	logger    *zap.Logger
	bus       plugin.EventBus
	employees services.EmployeeRepository
	clients   services.ClientRepository
	devices   AssignmentCounter
}

// New creates a new directory module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "directory",
		Version:      "0.1.0",
		Description:  "Employees and clients",
		Dependencies: []string{"inventory"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	employees, err := services.NewSQLiteEmployeeRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	clients, err := services.NewSQLiteClientRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.employees, m.clients = employees, clients

	if deps.Plugins != nil {
		if p, ok := deps.Plugins.Get("inventory"); ok {
			if ac, ok := p.(AssignmentCounter); ok {
				m.devices = ac
			}
		}
	}
	if m.devices == nil {
		m.logger.Warn("inventory unavailable; employee deletes will not check assigned devices")
	}
	m.logger.Info("directory module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

func (m *Module) publish(ctx context.Context, topic string, change models.Change) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{Topic: topic, Source: "directory", Payload: change})
}
