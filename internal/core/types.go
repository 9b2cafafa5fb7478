package core

import (
	"encoding/json"
	"time"
)

// UploadIDColumn tags every consolidated row with the upload it came from.
const UploadIDColumn = "_upload_id"

// LegacyUploadID marks rows merged before upload tagging existed.
const LegacyUploadID = "legacy"

// TimestampLayout is the display layout for audit and stats timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// ProjectInfo describes one project in the registry.
type ProjectInfo struct {
	Name        string `json:"name"`
	Created     string `json:"created"`
	Description string `json:"description"`
	Current     bool   `json:"current"`
}

// TopColumn is a dashboard column with an optional display label.
type TopColumn struct {
	Column      string `json:"column"`
	DisplayName string `json:"display_name,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare column name.
func (t *TopColumn) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*t = TopColumn{Column: name}
		return nil
	}
	type plain TopColumn
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = TopColumn(p)
	return nil
}

// Label returns the display name, falling back to the column name.
func (t TopColumn) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Column
}

// Settings are the per-project dashboard settings.
type Settings struct {
	TopColumns []TopColumn `json:"top_columns"`
	DateColumn string      `json:"date_column"`
}

// UploadRecord is one entry of a project's upload log.
type UploadRecord struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	UploadDate   string `json:"upload_date"`
	Rows         int    `json:"rows"`
	FilePath     string `json:"file_path"`
	Mapped       bool   `json:"mapped,omitempty"`
}

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadResult summarizes a multi-file upload batch.
type UploadResult struct {
	Success        bool     `json:"success"`
	FilesProcessed int      `json:"files_processed"`
	RowsAdded      int      `json:"rows_added"`
	TotalRows      int      `json:"total_rows"`
	Columns        int      `json:"columns"`
	FailedFiles    []string `json:"failed_files,omitempty"`
}

// MappedResult summarizes a mapped upload.
type MappedResult struct {
	RowsAdded int `json:"rows_added"`
	TotalRows int `json:"total_rows"`
}

// DeleteResult summarizes an upload deletion.
type DeleteResult struct {
	RowsRemoved int    `json:"rows_removed"`
	Message     string `json:"message"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// UploadPage is one page of the upload log, newest first.
type UploadPage struct {
	Uploads    []UploadRecord `json:"uploads"`
	Pagination Pagination     `json:"pagination"`
}

// Stats describes the consolidated table of the current project.
type Stats struct {
	Exists       bool     `json:"exists"`
	NoProject    bool     `json:"no_project,omitempty"`
	Project      string   `json:"project,omitempty"`
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	Columns      []string `json:"columns,omitempty"`
	FileSize     int64    `json:"file_size"`
	LastModified string   `json:"last_modified,omitempty"`
}

// ColumnInfo lists the visible columns and their detected roles.
type ColumnInfo struct {
	Columns        []string `json:"columns"`
	DateColumns    []string `json:"date_columns"`
	NumericColumns []string `json:"numeric_columns"`
}

// MemoryStats reports cache and task usage.
type MemoryStats struct {
	CacheItems  int     `json:"cache_items"`
	CacheSizeMB float64 `json:"cache_size_mb"`
	ActiveTasks int     `json:"active_tasks"`
}

// Period is an inclusive date range. Zero bounds disable filtering.
type Period struct {
	Start time.Time
	End   time.Time
}

// Active reports whether both bounds are set.
func (p Period) Active() bool {
	return !p.Start.IsZero() && !p.End.IsZero()
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}
