package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers call respondError; the technical error is logged with the request
// id and the client gets the mapped user message as JSON, an HTMX alert
// fragment, or plain text.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/logging"
	"github.com/JonMunkholm/datacompile/internal/risk"
	"github.com/JonMunkholm/datacompile/internal/web/views"
	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the user-facing message. A zero status
// is derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	if status >= 500 {
		log.Error("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		respondErrorJSON(w, msg, err, status)
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
	}
}

// respondErrorJSON writes a JSON error response. The error field keeps the
// technical message for client errors and the mapped one for server errors.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, err error, status int) {
	detail := msg.Message
	if status < 500 && err != nil {
		detail = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrProjectNotFound),
		errors.Is(err, core.ErrUploadNotFound),
		errors.Is(err, core.ErrTaskNotFound),
		errors.Is(err, core.ErrNoData),
		errors.Is(err, risk.ErrScanNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrProjectExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNoProject),
		errors.Is(err, core.ErrProjectName),
		errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, core.ErrColumnNotFound),
		errors.Is(err, core.ErrUnsupportedFile),
		errors.Is(err, core.ErrNoDateColumn),
		errors.Is(err, core.ErrNoFiles),
		errors.Is(err, core.ErrNoPeriodData),
		errors.Is(err, core.ErrEmptyRange),
		errors.Is(err, core.ErrSchemaMismatch),
		errors.Is(err, xlsx.ErrEmptyFile),
		errors.Is(err, xlsx.ErrMalformedPackage),
		errors.Is(err, xlsx.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers a JSON response. API routes and
// the JSON endpoints outside /api always answer JSON.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	switch r.URL.Path {
	case "/upload", "/upload-mapped", "/reset", "/stats", "/download":
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
