package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// exportSheetName names the single sheet of the consolidated export.
const exportSheetName = "Sheet1"

// exportAttempts bounds rebuilds when the snapshot keeps changing while the
// export is written.
const exportAttempts = 3

// ExportXLSX returns the path of an up-to-date spreadsheet export of the
// project. The artifact carries the modification time of the snapshot it
// was built from and is reused only while that still matches; otherwise it
// is rebuilt. Concurrent callers share one rebuild.
func (s *Service) ExportXLSX(ctx context.Context, project string) (string, error) {
	if err := s.requireProject(project); err != nil {
		return "", err
	}
	path := s.store.ExportPath(project)
	for range exportAttempts {
		snapTime, _, err := snapshotMTime(s.store.SnapshotPath(project))
		if err != nil {
			return "", err
		}
		if exportFresh(path, snapTime) {
			return path, nil
		}
		_, err, shared := s.exports.Do(project, func() (any, error) {
			return nil, s.buildExport(ctx, project, path)
		})
		if err != nil {
			return "", err
		}
		if shared {
			slog.Debug("export rebuild shared", "project", project)
		}
	}
	return "", fmt.Errorf("export %s: data changed during %d rebuilds", project, exportAttempts)
}

// exportFresh reports whether the artifact at path was built from the
// snapshot written at snapTime.
func exportFresh(path string, snapTime time.Time) bool {
	info, err := os.Stat(path)
	return err == nil && info.ModTime().Equal(snapTime)
}

// buildExport writes the artifact and stamps it with the mtime of the
// snapshot it was built from. An upload landing meanwhile leaves a stamp
// that no longer matches, so the next request rebuilds.
func (s *Service) buildExport(ctx context.Context, project, path string) error {
	start := time.Now()
	t, builtFrom, err := s.table(project)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.assembler.Bytes(withExportDates(exportView(t, exportSheetName)))
	if err != nil {
		return err
	}
	if err := xlsx.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	// Removed by a concurrent invalidation: nothing to stamp.
	if err := os.Chtimes(path, builtFrom, builtFrom); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stamp package: %w", err)
	}
	slog.Info("export rebuilt",
		"project", project,
		"rows", t.Rows(),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// maybePrewarm rebuilds the export in the background when enabled.
func (s *Service) maybePrewarm(ctx context.Context, project string) {
	if !s.prewarm {
		return
	}
	s.tasks.Start(ctx, "export", fmt.Sprintf("Pre-building export for %s", project),
		func(ctx context.Context, report func(int)) (any, error) {
			path, err := s.ExportXLSX(ctx, project)
			if errors.Is(err, ErrNoData) {
				return nil, nil
			}
			return path, err
		})
}

// ExportCSV writes the project's table as CSV.
func (s *Service) ExportCSV(project string, w io.Writer) error {
	t, err := s.Table(project)
	if err != nil {
		return err
	}
	return WriteCSV(w, exportView(t, exportSheetName))
}

// WriteCSV writes s as delimited text: a header row, then one record per
// row. Numbers use their shortest form and missing values are blank.
func WriteCSV(w io.Writer, s *xlsx.Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Headers()); err != nil {
		return err
	}
	record := make([]string, s.Width())
	for r := range s.Rows() {
		for c := range s.Columns {
			record[c] = s.Columns[c].Text(r)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportInfo describes the export artifact on disk.
type ExportInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ExportStatus reports the cached export, if any.
func (s *Service) ExportStatus(project string) (*ExportInfo, error) {
	path := s.store.ExportPath(project)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ExportInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}
