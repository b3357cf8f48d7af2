package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/config"
	"github.com/HerbHall/aims/internal/maintenance"
	"github.com/HerbHall/aims/internal/settings"
	"github.com/HerbHall/aims/internal/testutil"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// fakeInventory is a plugin whose ResyncAll returns canned results.
type fakeInventory struct {
	calls int
	err   error
}

func (f *fakeInventory) Info() plugin.PluginInfo                         { return plugin.PluginInfo{Name: "inventory"} }
func (f *fakeInventory) Init(context.Context, plugin.Dependencies) error { return nil }
func (f *fakeInventory) Start(context.Context) error                     { return nil }
func (f *fakeInventory) Stop(context.Context) error                      { return nil }

func (f *fakeInventory) ResyncAll(context.Context) ([]maintenance.ResyncResult, error) {
	f.calls++
	return []maintenance.ResyncResult{
		{Collection: models.CollectionInventory, Checked: 4, Changed: 1},
		{Collection: models.CollectionDeployed, Checked: 2},
	}, f.err
}

type resolver map[string]plugin.Plugin

func (r resolver) Get(name string) (plugin.Plugin, bool) {
	p, ok := r[name]
	return p, ok
}

func setup(t *testing.T, cfg map[string]any, inv *fakeInventory) (*Module, *settings.Module, plugin.Dependencies) {
	t.Helper()
	store := testutil.NewStore(t)
	st := settings.New()
	require.NoError(t, st.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Store: store}))

	v := viper.New()
	for k, val := range cfg {
		v.Set(k, val)
	}
	deps := plugin.Dependencies{
		Config:  config.New(v),
		Logger:  zap.NewNop(),
		Store:   store,
		Plugins: resolver{"inventory": inv, "settings": st},
	}
	clock := testutil.NewClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	m := New(WithNow(clock.Now))
	require.NoError(t, m.Init(context.Background(), deps))
	return m, st, deps
}

func TestInitDefaultSchedule(t *testing.T) {
	m, _, _ := setup(t, nil, &fakeInventory{})
	assert.Equal(t, DefaultSchedule, m.schedule)
	assert.Nil(t, m.LastRun())
}

func TestInitRejectsBadSchedule(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Config:  config.New(viperWith("plugins.scheduler.resync_cron", "every tuesday")),
		Logger:  zap.NewNop(),
		Plugins: resolver{"inventory": &fakeInventory{}},
	})
	require.Error(t, err)
}

func TestInitRequiresInventory(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Config:  config.New(viper.New()),
		Logger:  zap.NewNop(),
		Plugins: resolver{},
	})
	require.Error(t, err)
}

func TestRunNowRecordsRun(t *testing.T) {
	inv := &fakeInventory{}
	m, st, deps := setup(t, map[string]any{"plugins.scheduler.resync_cron": "0 3 * * *"}, inv)
	assert.Equal(t, "0 3 * * *", m.schedule)

	run, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
	assert.Len(t, run.Results, 2)
	assert.Empty(t, run.Error)
	assert.Equal(t, "healthy", m.Health(context.Background()).Status)

	s, err := st.Repository().Get(context.Background(), LastRunKey)
	require.NoError(t, err)
	var stored Run
	require.NoError(t, json.Unmarshal([]byte(s.Value), &stored))
	assert.Equal(t, 1, stored.Results[0].Changed)

	// A fresh module picks the last run back up.
	again := New()
	require.NoError(t, again.Init(context.Background(), deps))
	require.NotNil(t, again.LastRun())
	assert.True(t, again.LastRun().StartedAt.Equal(run.StartedAt))
}

func TestRunFailureDegradesHealth(t *testing.T) {
	m, _, _ := setup(t, nil, &fakeInventory{err: errors.New("disk full")})

	run, err := m.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, "disk full", run.Error)

	h := m.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "disk full", h.Message)
}

func TestStartStop(t *testing.T) {
	m, _, _ := setup(t, nil, &fakeInventory{})
	require.NoError(t, m.Start(context.Background()))
	assert.False(t, m.NextRun().IsZero())

	rec := httptest.NewRecorder()
	m.handleStatus(rec, httptest.NewRequest("GET", "/api/v1/scheduler/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"schedule":"@daily"`)
	assert.Contains(t, rec.Body.String(), `"next_run"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
}

func viperWith(key string, val any) *viper.Viper {
	v := viper.New()
	v.Set(key, val)
	return v
}
