package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/testutil"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

type fakeCounter map[string]int

func (f fakeCounter) AssignedCount(_ context.Context, id string) (int, error) {
	return f[id], nil
}

type fakeResolver struct{ p plugin.Plugin }

func (r fakeResolver) Get(name string) (plugin.Plugin, bool) {
	if name == "inventory" && r.p != nil {
		return r.p, true
	}
	return nil, false
}

// inventoryStub is a plugin exposing AssignedCount.
type inventoryStub struct{ fakeCounter }

func (inventoryStub) Info() plugin.PluginInfo                         { return plugin.PluginInfo{Name: "inventory"} }
func (inventoryStub) Init(context.Context, plugin.Dependencies) error { return nil }
func (inventoryStub) Start(context.Context) error                     { return nil }
func (inventoryStub) Stop(context.Context) error                      { return nil }

func newTestModule(t *testing.T, assigned fakeCounter) (*Module, *http.ServeMux, *testutil.MockBus) {
	t.Helper()
	bus := testutil.NewMockBus()
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger:  zap.NewNop(),
		Store:   testutil.NewStore(t),
		Bus:     bus,
		Plugins: fakeResolver{p: inventoryStub{assigned}},
	}))
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(rt.Method+" /api/v1/directory"+rt.Path, rt.Handler)
	}
	return m, mux, bus
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, "/api/v1/directory"+path, &buf))
	return rec
}

func TestEmployeeCRUD(t *testing.T) {
	_, mux, bus := newTestModule(t, fakeCounter{})

	rec := do(t, mux, "POST", "/employees", models.Employee{ID: "ignored", FirstName: " Ada ", LastName: "Lovelace", Department: "R&D"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e models.Employee
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	assert.NotEqual(t, "ignored", e.ID)
	assert.Equal(t, "Ada", e.FirstName)

	rec = do(t, mux, "PUT", "/employees/"+e.ID, models.Employee{FirstName: "Ada", LastName: "King", Department: "R&D"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/employees?q=king", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusNoContent, do(t, mux, "DELETE", "/employees/"+e.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, "GET", "/employees/"+e.ID, nil).Code)

	assert.Len(t, bus.Events(), 3)
}

func TestEmployeeValidation(t *testing.T) {
	_, mux, _ := newTestModule(t, fakeCounter{})
	rec := do(t, mux, "POST", "/employees", models.Employee{Email: "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, mux, "PUT", "/employees/missing", models.Employee{FirstName: "A"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEmployeeWithDevices(t *testing.T) {
	m, mux, _ := newTestModule(t, fakeCounter{})
	e := &models.Employee{FirstName: "Grace", LastName: "Hopper"}
	require.NoError(t, m.employees.Create(context.Background(), e))
	m.devices = fakeCounter{e.ID: 2}

	rec := do(t, mux, "DELETE", "/employees/"+e.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 deployed device")
}

func TestClientCRUD(t *testing.T) {
	_, mux, _ := newTestModule(t, fakeCounter{})

	rec := do(t, mux, "POST", "/clients", models.Client{Name: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c models.Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))

	assert.Equal(t, http.StatusConflict, do(t, mux, "POST", "/clients", models.Client{Name: "acme"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, "POST", "/clients", models.Client{}).Code)

	rec = do(t, mux, "PUT", "/clients/"+c.ID, models.Client{Name: "Acme Corp", Phone: "555"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Corp")

	assert.Equal(t, http.StatusNoContent, do(t, mux, "DELETE", "/clients/"+c.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, "DELETE", "/clients/"+c.ID, nil).Code)
}
