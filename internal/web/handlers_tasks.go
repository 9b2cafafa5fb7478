package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// recentTasks is how many tasks the task listing returns.
const recentTasks = 10

// handleHealth reports liveness plus the state of the optional stores.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"uploads": s.service.Limiter().Status(),
	}
	if s.risk != nil {
		if err := s.risk.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["risk_store"] = err.Error()
			writeJSONStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		status["risk_store"] = "ok"
	}
	writeJSON(w, status)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.service.Tasks()
	writeJSON(w, map[string]any{
		"tasks":  tasks.Recent(recentTasks),
		"active": tasks.ActiveCount(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.Tasks().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, task)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.service.ClearCache()
	writeJSON(w, map[string]any{"success": true, "message": "Cache cleared"})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.MemoryStats())
}
