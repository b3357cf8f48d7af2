// Package history records an audit trail of every change made through the
// API. It listens on the event bus for models.Change payloads and appends
// them to the history table.
package history

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Module implements the history plugin.
type Module struct {
	logger *zap.Logger
	repo   services.HistoryRepository
}

// New creates a new history module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "history",
		Version:     "0.1.0",
		Description: "Audit trail of changes",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	repo, err := services.NewSQLiteHistoryRepository(ctx, deps.Store)
	if err != nil {
		return err
	}
	m.repo = repo
	m.logger.Info("history module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Subscriptions records every event carrying a models.Change.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{{Handler: m.record}}
}

func (m *Module) record(ctx context.Context, e plugin.Event) {
	var c models.Change
	switch p := e.Payload.(type) {
	case models.Change:
		c = p
	case *models.Change:
		if p == nil {
			return
		}
		c = *p
	default:
		return
	}

	entry := services.HistoryEntry{
		Actor:        c.Actor,
		Role:         c.Role,
		Action:       c.Action,
		ResourceType: c.ResourceType,
		ResourceID:   c.ResourceID,
		CreatedAt:    e.Timestamp.UTC(),
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			m.logger.Warn("dropping unencodable change metadata",
				zap.String("topic", e.Topic), zap.Error(err))
		} else {
			entry.Metadata = raw
		}
	}

	if err := m.repo.Append(ctx, &entry); err != nil {
		m.logger.Error("failed to record history",
			zap.String("topic", e.Topic),
			zap.String("resource_type", c.ResourceType),
			zap.String("resource_id", c.ResourceID),
			zap.Error(err),
		)
	}
}
