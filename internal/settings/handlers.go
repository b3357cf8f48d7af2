package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/auth"
	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

type valueRequest struct {
	Value string `json:"value"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "", Handler: m.handleList},
		{Method: "GET", Path: "/{key}", Handler: m.handleGet},
		{Method: "PUT", Path: "/{key}", Handler: m.handlePut},
		{Method: "DELETE", Path: "/{key}", Handler: m.handleDelete},
	}
}

func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := m.repo.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		m.logger.Error("failed to list settings", zap.Error(err))
		server.InternalError(w, "failed to list settings", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, all)
}

func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := m.repo.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, s)
}

func (m *Module) handlePut(w http.ResponseWriter, r *http.Request) {
	key, ok := m.writableKey(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	s, err := m.repo.Set(r.Context(), key, req.Value)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), change(r, "update", key))
	server.WriteJSON(w, http.StatusOK, s)
}

func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := m.writableKey(w, r)
	if !ok {
		return
	}
	if err := m.repo.Delete(r.Context(), key); err != nil {
		m.writeError(w, r, err)
		return
	}
	m.publish(r.Context(), change(r, "delete", key))
	w.WriteHeader(http.StatusNoContent)
}

func (m *Module) writableKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.PathValue("key")
	if !ValidKey(key) {
		server.BadRequest(w, "invalid setting key", r.URL.Path)
		return "", false
	}
	if isSystemKey(key) {
		server.Forbidden(w, "system settings are read-only", r.URL.Path)
		return "", false
	}
	return key, true
}

func (m *Module) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrNotFound) {
		server.NotFound(w, "setting not found", r.URL.Path)
		return
	}
	m.logger.Error("settings operation failed", zap.String("path", r.URL.Path), zap.Error(err))
	server.InternalError(w, "settings operation failed", r.URL.Path)
}

func change(r *http.Request, action, key string) models.Change {
	return models.Change{
		Actor:        auth.ActorFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "setting",
		ResourceID:   key,
	}
}
