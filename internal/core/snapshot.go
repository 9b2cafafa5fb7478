package core

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// snapshotVersion is bumped whenever the gob layout changes.
const snapshotVersion = 1

type snapshotFile struct {
	Version int
	Sheet   xlsx.Sheet
}

// writeSnapshot persists s atomically.
func writeSnapshot(path string, s *xlsx.Sheet) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshotFile{Version: snapshotVersion, Sheet: *s}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := xlsx.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads the table at path. A missing file is ErrNoData.
func readSnapshot(path string) (*xlsx.Sheet, time.Time, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrNoData
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat snapshot: %w", err)
	}
	var snap snapshotFile
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, time.Time{}, fmt.Errorf("snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	// gob drops empty slices; restore zero-row columns to their kind.
	for i := range snap.Sheet.Columns {
		c := &snap.Sheet.Columns[i]
		if c.Kind == xlsx.KindNumeric && c.Numbers == nil {
			c.Numbers = []float64{}
		}
		if c.Kind == xlsx.KindText && c.Texts == nil {
			c.Texts = []string{}
		}
	}
	return &snap.Sheet, info.ModTime(), nil
}

// snapshotMTime returns the snapshot's modification time, or ErrNoData.
func snapshotMTime(path string) (time.Time, int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, 0, ErrNoData
	}
	if err != nil {
		return time.Time{}, 0, err
	}
	return info.ModTime(), info.Size(), nil
}
