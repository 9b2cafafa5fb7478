package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Upload decodes each file, checks its columns against the project's
// table, and appends the rows. Files are independent: a file that fails is
// listed in FailedFiles and the rest of the batch still merges. The
// snapshot is written once, after every file has been tried; when no file
// merged, ErrNoFiles is returned together with the result.
func (s *Service) Upload(ctx context.Context, project string, files []UploadFile) (*UploadResult, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, argError("no file provided")
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	unlock := s.lockProject(project)
	defer unlock()

	start := time.Now()
	current, _, err := s.table(project)
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}
	uploadLog, err := s.store.LoadUploadLog(project)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.store.UploadsDir(project), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}

	res := &UploadResult{}
	var (
		added   []UploadRecord
		written []string
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			removeFiles(written)
			return nil, err
		}
		if !s.allowed[xlsx.Ext(f.Name)] {
			res.FailedFiles = append(res.FailedFiles, f.Name+" (invalid type)")
			continue
		}

		now := s.now()
		uploadID := NewUploadID(now, f.Name)
		path := filepath.Join(s.store.UploadsDir(project), uploadID)
		merged, rows, err := s.mergeFile(current, f, uploadID, path)
		if err != nil {
			slog.Warn("upload file rejected", "project", project, "file", f.Name, "error", err)
			res.FailedFiles = append(res.FailedFiles, fmt.Sprintf("%s (%s)", f.Name, failureReason(err)))
			continue
		}
		current = merged
		written = append(written, path)
		added = append(added, UploadRecord{
			ID:           uploadID,
			OriginalName: f.Name,
			UploadDate:   now.Format(time.RFC3339),
			Rows:         rows,
			FilePath:     path,
		})
		res.FilesProcessed++
		res.RowsAdded += rows
	}

	if res.FilesProcessed == 0 {
		return res, ErrNoFiles
	}
	if err := s.commitUpload(project, current, uploadLog, added...); err != nil {
		removeFiles(written)
		return nil, err
	}

	res.Success = true
	res.TotalRows = current.Rows()
	res.Columns = len(visibleColumns(current))
	s.record(ctx, project, ActionFilesUploaded, fmt.Sprintf("%d file(s), %d rows added", res.FilesProcessed, res.RowsAdded))
	slog.Info("upload merged",
		"project", project,
		"files", res.FilesProcessed,
		"failed", len(res.FailedFiles),
		"rows_added", res.RowsAdded,
		"total_rows", res.TotalRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.maybePrewarm(ctx, project)
	return res, nil
}

// mergeFile saves the raw upload, decodes it and merges it into current.
// The raw file is removed again when the file cannot be merged.
func (s *Service) mergeFile(current *xlsx.Sheet, f UploadFile, uploadID, path string) (merged *xlsx.Sheet, rows int, err error) {
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return nil, 0, fmt.Errorf("save upload: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	sheet, err := s.decoder.Decode(f.Name, f.Data)
	if err != nil {
		return nil, 0, err
	}
	incoming, err := prepareIncoming(sheet, uploadID)
	if err != nil {
		return nil, 0, &xlsx.DecodeError{Path: f.Name, Err: err}
	}
	merged, err = mergeChecked(current, incoming)
	if err != nil {
		return nil, 0, err
	}
	return merged, incoming.Rows(), nil
}

// commitUpload appends added to the upload log and then saves t. The log
// is written first so every tagged row in a saved table has an entry; when
// the table cannot be saved the previous log is put back.
func (s *Service) commitUpload(project string, t *xlsx.Sheet, prev []UploadRecord, added ...UploadRecord) error {
	if err := s.store.SaveUploadLog(project, append(slices.Clip(prev), added...)); err != nil {
		return err
	}
	if err := s.saveTable(project, t); err != nil {
		if rerr := s.store.SaveUploadLog(project, prev); rerr != nil {
			slog.Error("restore upload log failed", "project", project, "error", rerr)
		}
		return err
	}
	return nil
}

// failureReason is the short text shown next to a failed file name.
func failureReason(err error) string {
	if IsUserFacing(err) {
		return MapError(err).Message
	}
	return err.Error()
}

func removeFiles(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// UploadMapped renames the file's columns by mapping, keeps only the mapped
// targets, and appends the rows without the column signature check.
func (s *Service) UploadMapped(ctx context.Context, project string, f UploadFile, mapping []ColumnMapping) (*MappedResult, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}
	if len(mapping) == 0 {
		return nil, argError("No column mapping provided")
	}
	if !s.allowed[xlsx.Ext(f.Name)] {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrUnsupportedFile)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	unlock := s.lockProject(project)
	defer unlock()

	current, _, err := s.table(project)
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}

	sheet, err := s.decoder.Decode(f.Name, f.Data)
	if err != nil {
		return nil, err
	}
	mapped, err := applyMapping(sheet, mapping)
	if err != nil {
		return nil, err
	}
	now := s.now()
	uploadID := NewUploadID(now, f.Name)
	incoming, err := prepareIncoming(mapped, uploadID)
	if err != nil {
		return nil, &xlsx.DecodeError{Path: f.Name, Err: err}
	}

	merged := incoming
	if current != nil {
		merged = concatSheets(ensureTagged(current), incoming)
	}
	uploadLog, err := s.store.LoadUploadLog(project)
	if err != nil {
		return nil, err
	}
	err = s.commitUpload(project, merged, uploadLog, UploadRecord{
		ID:           uploadID,
		OriginalName: f.Name,
		UploadDate:   now.Format(time.RFC3339),
		Rows:         incoming.Rows(),
		Mapped:       true,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, project, ActionFilesUploaded, fmt.Sprintf("Mapped upload: %s, %d rows", f.Name, incoming.Rows()))
	s.maybePrewarm(ctx, project)
	return &MappedResult{RowsAdded: incoming.Rows(), TotalRows: merged.Rows()}, nil
}

// Uploads returns one page of the upload log, newest first.
func (s *Service) Uploads(project string, page, perPage int) (*UploadPage, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}
	log, err := s.store.LoadUploadLog(project)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	perPage = min(perPage, 100)

	total := len(log)
	newest := make([]UploadRecord, total)
	for i, r := range log {
		newest[total-1-i] = r
	}
	lo := min((page-1)*perPage, total)
	hi := min(lo+perPage, total)
	return &UploadPage{
		Uploads: newest[lo:hi],
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   (total + perPage - 1) / perPage,
		},
	}, nil
}

// DeleteUpload removes every row tagged with id, the raw file and the log
// entry. When no rows remain the snapshot is deleted.
func (s *Service) DeleteUpload(ctx context.Context, project, id string) (*DeleteResult, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}
	unlock := s.lockProject(project)
	defer unlock()

	log, err := s.store.LoadUploadLog(project)
	if err != nil {
		return nil, err
	}
	pos := -1
	for i, r := range log {
		if r.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrUploadNotFound)
	}
	rec := log[pos]

	removed := 0
	current, _, err := s.table(project)
	switch {
	case errors.Is(err, ErrNoData):
	case err != nil:
		return nil, err
	default:
		tagged := ensureTagged(current)
		tags := &tagged.Columns[mustIndex(tagged, UploadIDColumn)]
		kept := filterRows(tagged, func(r int) bool { return tags.Text(r) != id })
		removed = tagged.Rows() - kept.Rows()
		if kept.Rows() == 0 {
			if _, err := removeIfExists(s.store.SnapshotPath(project)); err != nil {
				return nil, fmt.Errorf("remove snapshot: %w", err)
			}
			s.invalidate(project)
		} else if removed > 0 {
			if err := s.saveTable(project, kept); err != nil {
				return nil, err
			}
		}
	}

	if rec.FilePath != "" {
		if _, err := removeIfExists(rec.FilePath); err != nil {
			slog.Warn("remove raw upload failed", "project", project, "path", rec.FilePath, "error", err)
		}
	}
	log = append(log[:pos], log[pos+1:]...)
	if err := s.store.SaveUploadLog(project, log); err != nil {
		return nil, err
	}

	s.record(ctx, project, ActionUploadDeleted, fmt.Sprintf("Deleted %q, %d rows removed", rec.OriginalName, removed))
	return &DeleteResult{
		RowsRemoved: removed,
		Message:     fmt.Sprintf("Upload deleted. %d rows removed from consolidated data.", removed),
	}, nil
}

func mustIndex(s *xlsx.Sheet, name string) int {
	i, ok := s.Index(name)
	if !ok {
		panic("core: missing column " + name)
	}
	return i
}

// Reset deletes the snapshot, export, upload log and raw uploads. It
// returns ErrNoData when there was nothing to delete.
func (s *Service) Reset(ctx context.Context, project string) error {
	if err := s.requireProject(project); err != nil {
		return err
	}
	unlock := s.lockProject(project)
	defer unlock()

	deleted := false
	for _, path := range []string{
		s.store.ExportPath(project),
		s.store.SnapshotPath(project),
		s.store.uploadLogPath(project),
	} {
		ok, err := removeIfExists(path)
		if err != nil {
			return fmt.Errorf("reset %s: %w", filepath.Base(path), err)
		}
		deleted = deleted || ok
	}

	uploads := s.store.UploadsDir(project)
	if entries, err := os.ReadDir(uploads); err == nil && len(entries) > 0 {
		deleted = true
	}
	if err := os.RemoveAll(uploads); err != nil {
		return fmt.Errorf("reset uploads: %w", err)
	}
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		return fmt.Errorf("reset uploads: %w", err)
	}
	s.cache.Invalidate(project)

	if !deleted {
		return ErrNoData
	}
	s.record(ctx, project, ActionDataReset, "All data reset")
	slog.Info("project data reset", "project", project)
	return nil
}
