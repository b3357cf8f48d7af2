// Package inventory is the AIMS device module. It owns the inventory and
// deployed collections and routes every device write through the
// maintenance projector so the stored status never drifts from its inputs.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/importer"
	"github.com/HerbHall/aims/internal/maintenance"
	"github.com/HerbHall/aims/internal/metrics"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Event topics published by the inventory module.
const (
	TopicDeviceCreated = "inventory.device.created"
	TopicDeviceUpdated = "inventory.device.updated"
	TopicDeviceDeleted = "inventory.device.deleted"
	TopicDeviceMoved   = "inventory.device.moved"
	TopicTaskToggled   = "inventory.device.task_toggled"
	TopicImported      = "inventory.import.completed"
	TopicResynced      = "inventory.resync.completed"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the inventory plugin.
type Module struct {
	logger    *zap.Logger
	bus       plugin.EventBus
	repo      services.DeviceRepository
	projector *maintenance.Projector
	importer  *importer.Importer
	metrics   *metrics.Metrics
	clock     maintenance.Clock
}

// Option configures a Module.
type Option func(*Module)

// WithMetrics records projections, imports and resyncs in m and exposes
// the persisted status gauge.
func WithMetrics(m *metrics.Metrics) Option { return func(mod *Module) { mod.metrics = m } }

// WithClock overrides the time source used for projection.
func WithClock(c maintenance.Clock) Option { return func(mod *Module) { mod.clock = c } }

// New creates a new inventory module instance.
func New(opts ...Option) *Module {
	m := &Module{clock: maintenance.SystemClock{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "inventory",
		Version:     "0.1.0",
		Description: "Device collections, maintenance checklists and status projection",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	repo, err := services.NewSQLiteDeviceRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.repo = repo

	popts := []maintenance.Option{
		maintenance.WithClock(m.clock),
		maintenance.WithLogger(m.logger.Named("projector")),
	}
	iopts := []importer.Option{
		importer.WithWorkers(deps.Config.GetInt("plugins.inventory.import_workers")),
		importer.WithLogger(m.logger.Named("import")),
		importer.WithNow(m.clock.Now),
	}
	if m.metrics != nil {
		popts = append(popts, maintenance.WithRecorder(m.metrics))
		iopts = append(iopts, importer.WithObserver(m.metrics))
		if err := m.metrics.RegisterStatusGauge(repo, m.logger); err != nil {
			return fmt.Errorf("register status gauge: %w", err)
		}
	}
	m.projector = maintenance.NewProjector(repo, popts...)
	m.importer = importer.New(m.projector, iopts...)

	m.logger.Info("inventory module initialized")
	return nil
}

// Start brings every stored status up to date. This also migrates legacy
// documents that kept a condition in the status field.
func (m *Module) Start(ctx context.Context) error {
	if _, err := m.ResyncAll(ctx); err != nil {
		return fmt.Errorf("startup resync: %w", err)
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error { return nil }

// Health reports whether the device store answers queries.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	details := make(map[string]string, len(models.Collections))
	for _, coll := range models.Collections {
		counts, err := m.repo.CountByStatus(ctx, coll)
		if err != nil {
			return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		details[string(coll)] = fmt.Sprint(total)
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Projector exposes the module's projector. Valid after Init.
func (m *Module) Projector() *maintenance.Projector {
	return m.projector
}

// ResyncAll recomputes the stored status of both collections. A failure
// in one collection does not stop the other.
func (m *Module) ResyncAll(ctx context.Context) ([]maintenance.ResyncResult, error) {
	start := time.Now()
	results := make([]maintenance.ResyncResult, 0, len(models.Collections))
	var errs []error
	for _, coll := range models.Collections {
		res, err := m.projector.Resync(ctx, coll)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	err := errors.Join(errs...)

	if m.metrics != nil {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		m.metrics.ObserveResync(result, time.Since(start))
	}

	meta := map[string]any{}
	for _, r := range results {
		meta[string(r.Collection)] = r
	}
	m.publish(ctx, TopicResynced, models.Change{
		Actor:        actor(ctx),
		Role:         role(ctx),
		Action:       "resync",
		ResourceType: "collection",
		ResourceID:   "all",
		Metadata:     meta,
	})
	return results, err
}

func (m *Module) publish(ctx context.Context, topic string, change models.Change) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "inventory",
		Timestamp: m.clock.Now(),
		Payload:   change,
	})
}

// AssignedCount returns how many deployed devices are assigned to the
// employee. The directory module uses it to refuse deleting employees who
// still hold equipment.
func (m *Module) AssignedCount(ctx context.Context, employeeID string) (int, error) {
	res, err := m.repo.List(ctx, models.CollectionDeployed,
		services.DeviceFilter{AssignedTo: employeeID}, services.ListOptions{Limit: 1})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}
