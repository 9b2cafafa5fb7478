package web

// Shared request parsing and response helpers.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/datacompile/internal/core"
)

// maxPerPage caps the upload history page size.
const maxPerPage = 100

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// the header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// parseIntParam parses a non-negative integer query parameter, falling back
// to defaultVal when it is absent or malformed.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// dateFilter reads a start/end pair of YYYY-MM-DD query parameters.
func dateFilter(r *http.Request, startKey, endKey string) core.DateFilter {
	q := r.URL.Query()
	return core.DateFilter{
		Start: strings.TrimSpace(q.Get(startKey)),
		End:   strings.TrimSpace(q.Get(endKey)),
	}
}

// splitList splits a comma-separated query value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// currentProject resolves the selected project or answers with ErrNoProject.
func (s *Server) currentProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	project, err := s.service.CurrentProject()
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return "", false
	}
	if project == "" {
		s.respondError(w, r, core.ErrNoProject, http.StatusBadRequest)
		return "", false
	}
	return project, true
}

// writeReport sends a generated file as an attachment.
func writeReport(w http.ResponseWriter, rep *core.Report) {
	w.Header().Set("Content-Type", rep.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.Data)))
	if _, err := w.Write(rep.Data); err != nil {
		slog.Warn("report write failed", "file", rep.Filename, "error", err)
	}
}
