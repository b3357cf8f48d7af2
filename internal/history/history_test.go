package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/internal/testutil"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestModule(t *testing.T) (*Module, *http.ServeMux) {
	t.Helper()
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  testutil.NewStore(t),
	}))
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(rt.Method+" /api/v1/history"+rt.Path, rt.Handler)
	}
	return m, mux
}

func deliver(m *Module, topic string, at time.Time, payload any) {
	for _, sub := range m.Subscriptions() {
		sub.Handler(context.Background(), plugin.Event{Topic: topic, Timestamp: at, Payload: payload})
	}
}

func list(t *testing.T, mux *http.ServeMux, path string) (int, services.ListResult[services.HistoryEntry]) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/history"+path, nil))
	var res services.ListResult[services.HistoryEntry]
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	}
	return rec.Code, res
}

func TestSubscriptionsCatchAll(t *testing.T) {
	m := New()
	subs := m.Subscriptions()
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].Topic)
}

func TestRecordChange(t *testing.T) {
	m, mux := newTestModule(t)

	deliver(m, "inventory.device.created", t0, models.Change{
		Actor: "tech", Role: "operator", Action: "create",
		ResourceType: "device", ResourceID: "LT-001",
		Metadata: map[string]any{"collection": "inventory"},
	})
	deliver(m, "inventory.device.task_toggled", t0.Add(time.Minute), &models.Change{
		Actor: "tech", Action: "toggle_task", ResourceType: "device", ResourceID: "LT-001",
	})
	deliver(m, "directory.employee.changed", t0.Add(2*time.Minute), models.Change{
		Actor: "admin", Action: "create", ResourceType: "employee", ResourceID: "e-1",
	})

	code, res := list(t, mux, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 3, res.Total)
	assert.Equal(t, "employee", res.Items[0].ResourceType, "newest first")

	oldest := res.Items[2]
	assert.Equal(t, "create", oldest.Action)
	assert.Equal(t, "operator", oldest.Role)
	assert.JSONEq(t, `{"collection":"inventory"}`, string(oldest.Metadata))
	assert.NotEmpty(t, oldest.Digest)
	assert.True(t, oldest.CreatedAt.Equal(t0))
}

func TestRecordIgnoresForeignPayloads(t *testing.T) {
	m, mux := newTestModule(t)

	deliver(m, "inventory.resync.completed", t0, map[string]int{"updated": 3})
	deliver(m, "inventory.device.deleted", t0, (*models.Change)(nil))

	code, res := list(t, mux, "")
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, res.Total)
}

func TestListFilters(t *testing.T) {
	m, mux := newTestModule(t)
	deliver(m, "a", t0, models.Change{Actor: "tech", Action: "create", ResourceType: "device", ResourceID: "PC-1"})
	deliver(m, "b", t0.Add(time.Hour), models.Change{Actor: "admin", Action: "update", ResourceType: "device", ResourceID: "PC-1"})
	deliver(m, "c", t0.Add(2*time.Hour), models.Change{Actor: "admin", Action: "create", ResourceType: "device", ResourceID: "PC-2"})

	_, res := list(t, mux, "/device/PC-1")
	assert.Equal(t, 2, res.Total)

	_, res = list(t, mux, "?actor=admin")
	assert.Equal(t, 2, res.Total)

	_, res = list(t, mux, "?since="+t0.Add(90*time.Minute).Format(time.RFC3339))
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "PC-2", res.Items[0].ResourceID)

	_, res = list(t, mux, "?limit=1&order=asc")
	require.Len(t, res.Items, 1)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, "tech", res.Items[0].Actor)
}

func TestListRejectsBadSince(t *testing.T) {
	_, mux := newTestModule(t)
	code, _ := list(t, mux, "?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, code)
}
