package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/registry"
	"github.com/HerbHall/aims/internal/version"
	"github.com/HerbHall/aims/pkg/plugin"
)

type stubPlugin struct {
	name   string
	health *plugin.HealthStatus
	routes []plugin.Route
}

func (p *stubPlugin) Info() plugin.PluginInfo {
	return plugin.PluginInfo{Name: p.name, Version: "1.0.0", APIVersion: plugin.APIVersionCurrent}
}
func (p *stubPlugin) Init(context.Context, plugin.Dependencies) error { return nil }
func (p *stubPlugin) Start(context.Context) error                     { return nil }
func (p *stubPlugin) Stop(context.Context) error                      { return nil }
func (p *stubPlugin) Routes() []plugin.Route                          { return p.routes }

type healthyPlugin struct{ *stubPlugin }

func (p healthyPlugin) Health(context.Context) plugin.HealthStatus { return *p.health }

func newTestServer(t *testing.T, opts []Option, plugins ...plugin.Plugin) *Server {
	t.Helper()
	reg := registry.New(zap.NewNop())
	for _, p := range plugins {
		require.NoError(t, reg.Register(p))
	}
	require.NoError(t, reg.Validate())
	return New(":0", reg, zap.NewNop(), opts...)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestHealth_OK(t *testing.T) {
	p := healthyPlugin{&stubPlugin{name: "inventory", health: &plugin.HealthStatus{Status: "healthy"}}}
	s := newTestServer(t, nil, p)

	rec := serve(s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, version.Short(), rec.Header().Get(version.Header))

	var body struct {
		Status  string                         `json:"status"`
		Modules map[string]plugin.HealthStatus `json:"modules"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "healthy", body.Modules["inventory"].Status)
}

func TestHealth_DegradedModule(t *testing.T) {
	p := healthyPlugin{&stubPlugin{name: "scheduler", health: &plugin.HealthStatus{Status: "degraded", Message: "last run failed"}}}
	s := newTestServer(t, nil, p)

	rec := serve(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestPluginRoutesMounted(t *testing.T) {
	p := &stubPlugin{name: "inventory", routes: []plugin.Route{{
		Method: http.MethodGet,
		Path:   "/ping",
		Handler: func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"pong": "yes"})
		},
	}}}
	s := newTestServer(t, nil, p)

	rec := serve(s, http.MethodGet, "/api/v1/inventory/ping")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/api/v1/plugins")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inventory"`)
}

func TestMiddlewareOrder(t *testing.T) {
	var calls []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	s := newTestServer(t, []Option{WithMiddleware(mw("first"), mw("second"))})

	serve(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "aims_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(t, []Option{WithMetrics(reg)})
	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aims_test_total 1")

	without := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, serve(without, http.MethodGet, "/metrics").Code)
}
