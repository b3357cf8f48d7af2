// Package scheduler periodically resyncs device statuses so that
// time-based decay is reflected in the persisted status field.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/maintenance"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/plugin"
)

// DefaultSchedule runs a resync once a day at midnight.
const DefaultSchedule = "@daily"

// LastRunKey is the settings key holding the most recent Run.
const LastRunKey = "system.last_resync"

// Resyncer recomputes every persisted status. The inventory module
// implements it.
type Resyncer interface {
	ResyncAll(ctx context.Context) ([]maintenance.ResyncResult, error)
}

// SettingsProvider exposes the shared settings store. The settings module
// implements it.
type SettingsProvider interface {
	Repository() services.SettingsRepository
}

// Run describes one resync pass.
type Run struct {
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Results    []maintenance.ResyncResult `json:"results"`
	Error      string                     `json:"error,omitempty"`
}

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the scheduler plugin.
type Module struct {
	logger    *zap.Logger
	schedule  string
	inventory Resyncer
	settings  services.SettingsRepository
	now       func() time.Time

	cron   *cron.Cron
	entry  cron.EntryID
	cancel context.CancelFunc

	runMu sync.Mutex // Serializes runs.
	mu    sync.RWMutex
	last  *Run
}

// Option configures a Module.
type Option func(*Module)

// WithNow overrides the clock used to stamp runs.
func WithNow(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates a new scheduler module instance.
func New(opts ...Option) *Module {
	m := &Module{now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "scheduler",
		Version:      "0.1.0",
		Description:  "Scheduled status resync",
		Dependencies: []string{"inventory", "settings"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.schedule = DefaultSchedule
	if deps.Config != nil && deps.Config.GetString("plugins.scheduler.resync_cron") != "" {
		m.schedule = deps.Config.GetString("plugins.scheduler.resync_cron")
	}
	if _, err := cron.ParseStandard(m.schedule); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", m.schedule, err)
	}

	if deps.Plugins == nil {
		return errors.New("scheduler requires the inventory module")
	}
	p, ok := deps.Plugins.Get("inventory")
	if !ok {
		return errors.New("scheduler requires the inventory module")
	}
	if m.inventory, ok = p.(Resyncer); !ok {
		return errors.New("inventory module does not support resync")
	}
	if p, ok := deps.Plugins.Get("settings"); ok {
		if sp, ok := p.(SettingsProvider); ok {
			m.settings = sp.Repository()
		}
	}

	if m.settings != nil {
		var last Run
		err := services.GetJSON(ctx, m.settings, LastRunKey, &last)
		switch {
		case err == nil:
			m.last = &last
		case !errors.Is(err, services.ErrNotFound):
			m.logger.Warn("ignoring unreadable last resync record", zap.Error(err))
		}
	}

	m.logger.Info("scheduler module initialized", zap.String("schedule", m.schedule))
	return nil
}

// Start schedules the resync job. Jobs never overlap; a tick that fires
// while a run is still going is skipped.
func (m *Module) Start(_ context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := m.cron.AddFunc(m.schedule, func() {
		if _, err := m.RunNow(runCtx); err != nil {
			m.logger.Warn("scheduled resync failed", zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule resync: %w", err)
	}
	m.entry = id
	m.cron.Start()
	m.logger.Info("resync scheduled", zap.Time("next", m.cron.Entry(id).Next))
	return nil
}

// Stop cancels an in-flight run and waits for it to return, or for ctx.
func (m *Module) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	m.cancel()
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs a resync immediately and records the outcome.
func (m *Module) RunNow(ctx context.Context) (*Run, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	run := &Run{StartedAt: m.now().UTC()}
	results, err := m.inventory.ResyncAll(ctx)
	run.FinishedAt = m.now().UTC()
	run.Results = results
	if err != nil {
		run.Error = err.Error()
	}

	changed := 0
	for _, r := range results {
		changed += r.Changed
	}
	m.logger.Info("resync finished",
		zap.Int("changed", changed),
		zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
		zap.Error(err),
	)

	m.mu.Lock()
	m.last = run
	m.mu.Unlock()

	if m.settings != nil {
		if serr := services.SetJSON(ctx, m.settings, LastRunKey, run); serr != nil {
			m.logger.Warn("failed to persist resync record", zap.Error(serr))
		}
	}
	return run, err
}

// LastRun returns the most recent run, or nil before the first one.
func (m *Module) LastRun() *Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// NextRun returns when the job fires next. Zero before Start.
func (m *Module) NextRun() time.Time {
	if m.cron == nil {
		return time.Time{}
	}
	return m.cron.Entry(m.entry).Next
}

// Health is degraded while the last run ended in error.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	details := map[string]string{"schedule": m.schedule}
	if next := m.NextRun(); !next.IsZero() {
		details["next_run"] = next.UTC().Format(time.RFC3339)
	}
	last := m.LastRun()
	if last == nil {
		return plugin.HealthStatus{Status: "healthy", Message: "no resync has run yet", Details: details}
	}
	details["last_run"] = last.FinishedAt.Format(time.RFC3339)
	if last.Error != "" {
		return plugin.HealthStatus{Status: "degraded", Message: last.Error, Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}
