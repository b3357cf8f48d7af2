package scheduler

import (
	"net/http"
	"time"

	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/pkg/plugin"
)

type statusResponse struct {
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *Run       `json:"last_run"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
	}
}

func (m *Module) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Schedule: m.schedule, LastRun: m.LastRun()}
	if next := m.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	server.WriteJSON(w, http.StatusOK, resp)
}
