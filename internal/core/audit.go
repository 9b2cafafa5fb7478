package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Audit actions.
const (
	ActionProjectCreated = "PROJECT_CREATED"
	ActionProjectDeleted = "PROJECT_DELETED"
	ActionFilesUploaded  = "FILES_UPLOADED"
	ActionUploadDeleted  = "UPLOAD_DELETED"
	ActionDataReset      = "DATA_RESET"
	ActionSettingsSaved  = "SETTINGS_SAVED"
	ActionRiskScan       = "RISK_SCAN"
)

// DefaultAuditEntries is how many entries a project's audit file keeps.
const DefaultAuditEntries = 500

// AuditEntry is one line of a project's audit trail.
type AuditEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	IPAddress string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// AuditLog records and lists project activity.
type AuditLog interface {
	Record(ctx context.Context, project, action, details string) error
	// List returns entries newest first.
	List(ctx context.Context, project string) ([]AuditEntry, error)
}

// FileAuditLog keeps each project's trail in its audit_log.json, trimmed to
// the most recent entries.
type FileAuditLog struct {
	store      *ProjectStore
	maxEntries int
	now        func() time.Time

	mu sync.Mutex
}

// NewFileAuditLog returns a file-backed audit log. A non-positive
// maxEntries selects DefaultAuditEntries.
func NewFileAuditLog(store *ProjectStore, maxEntries int) *FileAuditLog {
	if maxEntries <= 0 {
		maxEntries = DefaultAuditEntries
	}
	return &FileAuditLog{store: store, maxEntries: maxEntries, now: time.Now}
}

func (l *FileAuditLog) Record(ctx context.Context, project, action, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []AuditEntry
	path := l.store.auditLogPath(project)
	if _, err := readJSON(path, &entries); err != nil {
		return err
	}
	entries = append(entries, AuditEntry{
		Timestamp: l.now().Format(TimestampLayout),
		Action:    action,
		Details:   details,
		IPAddress: ClientIP(ctx),
		UserAgent: ClientUserAgent(ctx),
	})
	if len(entries) > l.maxEntries {
		entries = entries[len(entries)-l.maxEntries:]
	}
	return writeJSON(path, entries)
}

func (l *FileAuditLog) List(_ context.Context, project string) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []AuditEntry
	if _, err := readJSON(l.store.auditLogPath(project), &entries); err != nil {
		return nil, err
	}
	out := make([]AuditEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// MultiAuditLog writes to a primary log and best-effort mirrors. Listing
// reads the primary only.
type MultiAuditLog struct {
	primary AuditLog
	mirrors []AuditLog
}

// NewMultiAuditLog fans out to primary and every non-nil mirror.
func NewMultiAuditLog(primary AuditLog, mirrors ...AuditLog) *MultiAuditLog {
	m := &MultiAuditLog{primary: primary}
	for _, mirror := range mirrors {
		if mirror != nil {
			m.mirrors = append(m.mirrors, mirror)
		}
	}
	return m
}

func (m *MultiAuditLog) Record(ctx context.Context, project, action, details string) error {
	err := m.primary.Record(ctx, project, action, details)
	for _, mirror := range m.mirrors {
		if merr := mirror.Record(ctx, project, action, details); merr != nil {
			slog.Warn("audit mirror write failed", "project", project, "action", action, "error", merr)
		}
	}
	return err
}

func (m *MultiAuditLog) List(ctx context.Context, project string) ([]AuditEntry, error) {
	return m.primary.List(ctx, project)
}
