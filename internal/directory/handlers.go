package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/auth"
	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/employees", Handler: m.handleListEmployees},
		{Method: "POST", Path: "/employees", Handler: m.handleCreateEmployee},
		{Method: "GET", Path: "/employees/{id}", Handler: m.handleGetEmployee},
		{Method: "PUT", Path: "/employees/{id}", Handler: m.handleUpdateEmployee},
		{Method: "DELETE", Path: "/employees/{id}", Handler: m.handleDeleteEmployee},
		{Method: "GET", Path: "/clients", Handler: m.handleListClients},
		{Method: "POST", Path: "/clients", Handler: m.handleCreateClient},
		{Method: "GET", Path: "/clients/{id}", Handler: m.handleGetClient},
		{Method: "PUT", Path: "/clients/{id}", Handler: m.handleUpdateClient},
		{Method: "DELETE", Path: "/clients/{id}", Handler: m.handleDeleteClient},
	}
}

func (m *Module) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts services.ListOptions
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	res, err := m.employees.List(r.Context(), q.Get("q"), opts)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (m *Module) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := m.employees.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, e)
}

func (m *Module) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	e, ok := decodeEmployee(w, r)
	if !ok {
		return
	}
	e.ID = ""
	if err := m.employees.Create(r.Context(), e); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicEmployeeChanged, change(r, "create", "employee", e.ID, e.FullName()))
	server.WriteJSON(w, http.StatusCreated, e)
}

func (m *Module) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	e, ok := decodeEmployee(w, r)
	if !ok {
		return
	}
	e.ID = r.PathValue("id")
	existing, err := m.employees.Get(r.Context(), e.ID)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	e.CreatedAt = existing.CreatedAt
	if err := m.employees.Update(r.Context(), e); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicEmployeeChanged, change(r, "update", "employee", e.ID, e.FullName()))
	server.WriteJSON(w, http.StatusOK, e)
}

// handleDeleteEmployee refuses while devices are still deployed to the
// employee; move them back to inventory first.
func (m *Module) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if m.devices != nil {
		n, err := m.devices.AssignedCount(r.Context(), id)
		if err != nil {
			m.writeError(w, r, err)
			return
		}
		if n > 0 {
			server.Conflict(w, fmt.Sprintf("employee still has %d deployed device(s)", n), r.URL.Path)
			return
		}
	}
	if err := m.employees.Delete(r.Context(), id); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicEmployeeChanged, change(r, "delete", "employee", id, ""))
	w.WriteHeader(http.StatusNoContent)
}

func (m *Module) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := m.clients.List(r.Context())
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, clients)
}

func (m *Module) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := m.clients.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, c)
}

func (m *Module) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeClient(w, r)
	if !ok {
		return
	}
	c.ID = ""
	if err := m.clients.Create(r.Context(), c); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicClientChanged, change(r, "create", "client", c.ID, c.Name))
	server.WriteJSON(w, http.StatusCreated, c)
}

func (m *Module) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeClient(w, r)
	if !ok {
		return
	}
	c.ID = r.PathValue("id")
	existing, err := m.clients.Get(r.Context(), c.ID)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	c.CreatedAt = existing.CreatedAt
	if err := m.clients.Update(r.Context(), c); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicClientChanged, change(r, "update", "client", c.ID, c.Name))
	server.WriteJSON(w, http.StatusOK, c)
}

func (m *Module) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.clients.Delete(r.Context(), id); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), TopicClientChanged, change(r, "delete", "client", id, ""))
	w.WriteHeader(http.StatusNoContent)
}

func decodeEmployee(w http.ResponseWriter, r *http.Request) (*models.Employee, bool) {
	var e models.Employee
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return nil, false
	}
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	if e.FirstName == "" && e.LastName == "" {
		server.BadRequest(w, "first_name or last_name is required", r.URL.Path)
		return nil, false
	}
	return &e, true
}

func decodeClient(w http.ResponseWriter, r *http.Request) (*models.Client, bool) {
	var c models.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return nil, false
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		server.BadRequest(w, "name is required", r.URL.Path)
		return nil, false
	}
	return &c, true
}

func (m *Module) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		server.NotFound(w, "not found", r.URL.Path)
	case errors.Is(err, services.ErrAlreadyExists):
		server.Conflict(w, "already exists", r.URL.Path)
	default:
		m.logger.Error("directory operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		server.InternalError(w, "directory operation failed", r.URL.Path)
	}
}

func change(r *http.Request, action, resource, id, name string) models.Change {
	c := models.Change{
		Actor:        auth.ActorFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resource,
		ResourceID:   id,
	}
	if name != "" {
		c.Metadata = map[string]any{"name": name}
	}
	return c
}
