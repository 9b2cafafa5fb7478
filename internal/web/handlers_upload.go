package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacompile/internal/admin"
	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/logging"
)

// uploadFailure is the body of a batch in which no file could be merged.
type uploadFailure struct {
	ErrorResponse
	FailedFiles []string `json:"failed_files,omitempty"`
}

// parseUploadForm limits the body and parses the multipart form.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large or invalid form: %w", err), http.StatusBadRequest)
		return false
	}
	return true
}

func readPart(fh *multipart.FileHeader) (core.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return core.UploadFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return core.UploadFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return core.UploadFile{Name: fh.Filename, Data: data}, nil
}

// uploadContext bounds one batch by the configured upload timeout.
func (s *Server) uploadContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := withClient(r)
	if s.cfg.Upload.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	}
	return context.WithCancel(ctx)
}

// handleUpload merges every file of the "files" field into the current
// project. Files that fail are reported in failed_files; the batch only
// fails when none of them merged.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	if !s.parseUploadForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		s.respondError(w, r, fmt.Errorf("%w: no files provided", core.ErrInvalidArgument), http.StatusBadRequest)
		return
	}

	files := make([]core.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		files = append(files, f)
	}

	ctx, cancel := s.uploadContext(r)
	defer cancel()

	res, err := s.service.Upload(ctx, project, files)
	if errors.Is(err, core.ErrNoFiles) && res != nil {
		msg := core.MapError(err)
		logging.WithFields(r.Context(), "project", project).Warn("upload batch rejected", "failed", res.FailedFiles)
		writeJSONStatus(w, http.StatusBadRequest, uploadFailure{
			ErrorResponse: ErrorResponse{Error: err.Error(), Message: msg.Message, Action: msg.Action, Code: msg.Code},
			FailedFiles:   res.FailedFiles,
		})
		return
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

// handleUploadMapped merges one file after renaming its columns by the
// JSON object in the "mapping" field.
func (s *Server) handleUploadMapped(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	if !s.parseUploadForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.respondError(w, r, fmt.Errorf("%w: no file provided", core.ErrInvalidArgument), http.StatusBadRequest)
		return
	}
	mapping, err := core.ParseMapping([]byte(r.FormValue("mapping")))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	f, err := readPart(headers[0])
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx, cancel := s.uploadContext(r)
	defer cancel()

	res, err := s.service.UploadMapped(ctx, project, f, mapping)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{
		"success":    true,
		"rows_added": res.RowsAdded,
		"total_rows": res.TotalRows,
	})
}

// handleListUploads returns one page of the upload history, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	page := max(parseIntParam(r, "page", 1), 1)
	perPage := min(max(parseIntParam(r, "per_page", 20), 1), maxPerPage)

	res, err := s.service.Uploads(project, page, perPage)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, res)
}

// handleDeleteUpload removes the rows of one upload batch.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	res, err := s.service.DeleteUpload(withClient(r), project, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{
		"success":      true,
		"rows_removed": res.RowsRemoved,
		"message":      res.Message,
	})
}

// handleReset deletes all consolidated data of the current project.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	project, ok := s.currentProject(w, r)
	if !ok {
		return
	}
	if err := admin.ResetProject(withClient(r), s.service, s.risk, project); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": "All data has been reset"})
}
