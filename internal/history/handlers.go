package history

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "", Handler: m.handleList},
		{Method: "GET", Path: "/{type}/{id}", Handler: m.handleResource},
	}
}

// handleList returns entries newest first. Query parameters:
// resource_type, resource_id, actor, since (RFC 3339), limit, offset, order.
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.HistoryFilter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Actor:        q.Get("actor"),
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			server.BadRequest(w, "since must be an RFC 3339 timestamp", r.URL.Path)
			return
		}
		filter.Since = since
	}
	m.list(w, r, filter)
}

func (m *Module) handleResource(w http.ResponseWriter, r *http.Request) {
	m.list(w, r, services.HistoryFilter{
		ResourceType: r.PathValue("type"),
		ResourceID:   r.PathValue("id"),
	})
}

func (m *Module) list(w http.ResponseWriter, r *http.Request, filter services.HistoryFilter) {
	q := r.URL.Query()
	opts := services.ListOptions{SortOrder: q.Get("order")}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	res, err := m.repo.List(r.Context(), filter, opts)
	if err != nil {
		m.logger.Error("failed to list history", zap.Error(err))
		server.InternalError(w, "failed to list history", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}
