package web

// Project registry and per-project settings.

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacompile/internal/admin"
	"github.com/JonMunkholm/datacompile/internal/core"
)

// maxSettingsBody bounds settings and project request bodies.
const maxSettingsBody = 1 << 20

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid JSON body: %v", core.ErrInvalidArgument, err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, map[string]any{"projects": projects, "current_project": current})
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.service.CreateProject(withClient(r), req.Name, req.Description); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"success": true, "project": req.Name})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := admin.DeleteProject(withClient(r), s.service, s.risk, name); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleSelectProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.service.SelectProject(name); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"success": true, "current_project": name})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	st, err := s.service.Settings(project)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	var st core.Settings
	if !s.decodeBody(w, r, &st) {
		return
	}
	if st.TopColumns == nil {
		st.TopColumns = []core.TopColumn{}
	}
	if err := s.service.SaveSettings(withClient(r), project, st); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"success": true, "settings": st})
}
