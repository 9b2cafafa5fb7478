package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/web/views"
)

// pageUploads is how many uploads the index page lists.
const pageUploads = 20

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render failed", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	current, err := s.service.CurrentProject()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	data := views.IndexData{Projects: projects, Current: current}
	if current != "" {
		if data.Stats, err = s.service.Stats(current); err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		page, err := s.service.Uploads(current, 1, pageUploads)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		data.Uploads = page.Uploads
	}
	s.render(w, r, views.IndexPage(data))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.CurrentProject()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	data := views.DashboardData{Project: current}
	if current == "" {
		s.render(w, r, views.DashboardPage(data))
		return
	}

	if data.Stats, err = s.service.Stats(current); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if data.Settings, err = s.service.Settings(current); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if data.Stats.Exists {
		// A table without a usable date column still renders its top values.
		dr, err := s.service.DateRange(current)
		if err != nil && !errors.Is(err, core.ErrNoDateColumn) {
			s.respondError(w, r, err, 0)
			return
		}
		data.DateRange = dr
		if data.Dashboard, err = s.service.DashboardStats(current, core.DateFilter{}); err != nil {
			s.respondError(w, r, err, 0)
			return
		}
	}
	s.render(w, r, views.DashboardPage(data))
}
