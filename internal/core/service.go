package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// DefaultAllowedExtensions are the upload types accepted when none are configured.
var DefaultAllowedExtensions = []string{"xlsx", "xls", "csv"}

// Options configures a Service.
type Options struct {
	DataDir           string
	CacheTTL          time.Duration
	Decoder           *xlsx.Decoder
	AllowedExtensions []string
	AuditMaxEntries   int
	// AuditMirror, when set, receives a copy of every audit entry.
	AuditMirror   AuditLog
	Limiter       *UploadLimiter
	PrewarmExport bool
	// Parallelism bounds concurrent sheet encoding for exports.
	Parallelism int
}

// Service provides the consolidation, export and analytics operations.
type Service struct {
	store     *ProjectStore
	cache     *TableCache
	audit     AuditLog
	tasks     *TaskRegistry
	decoder   *xlsx.Decoder
	limiter   *UploadLimiter
	assembler *xlsx.PackageAssembler
	allowed   map[string]bool
	prewarm   bool
	now       func() time.Time

	exports singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService opens the project store and wires the collaborators.
func NewService(opts Options) (*Service, error) {
	store, err := NewProjectStore(opts.DataDir)
	if err != nil {
		return nil, err
	}

	decoder := opts.Decoder
	if decoder == nil {
		decoder = xlsx.NewDecoder(nil, xlsx.CSVOptions{})
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")] = true
	}

	var audit AuditLog = NewFileAuditLog(store, opts.AuditMaxEntries)
	if opts.AuditMirror != nil {
		audit = NewMultiAuditLog(audit, opts.AuditMirror)
	}

	return &Service{
		store:     store,
		cache:     NewTableCache(opts.CacheTTL),
		audit:     audit,
		tasks:     NewTaskRegistry(),
		decoder:   decoder,
		limiter:   limiter,
		assembler: &xlsx.PackageAssembler{Parallelism: opts.Parallelism},
		allowed:   allowed,
		prewarm:   opts.PrewarmExport,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (s *Service) Store() *ProjectStore    { return s.store }
func (s *Service) Cache() *TableCache      { return s.cache }
func (s *Service) Tasks() *TaskRegistry    { return s.tasks }
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// lockProject serializes snapshot mutations of one project.
func (s *Service) lockProject(project string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[project]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[project] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// record writes an audit entry. Audit failures are logged and never fail
// the operation that produced them.
func (s *Service) record(ctx context.Context, project, action, details string) {
	if err := s.audit.Record(ctx, project, action, details); err != nil {
		slog.Warn("audit write failed", "project", project, "action", action, "error", err)
	}
}

// CurrentProject returns the selected project.
func (s *Service) CurrentProject() (string, error) {
	return s.store.CurrentProject()
}

// ListProjects returns every project sorted by name.
func (s *Service) ListProjects() ([]ProjectInfo, error) {
	return s.store.ListProjects()
}

// CreateProject creates a project and makes it current.
func (s *Service) CreateProject(ctx context.Context, name, description string) error {
	name = strings.TrimSpace(name)
	if err := s.store.CreateProject(name, description); err != nil {
		return err
	}
	s.record(ctx, name, ActionProjectCreated, fmt.Sprintf("Project %q created", name))
	slog.Info("project created", "project", name)
	return nil
}

// DeleteProject removes a project with all of its data.
func (s *Service) DeleteProject(ctx context.Context, name string) error {
	unlock := s.lockProject(name)
	defer unlock()

	if err := s.store.DeleteProject(name); err != nil {
		return err
	}
	s.cache.Invalidate(name)
	slog.Info("project deleted", "project", name)
	return nil
}

// SelectProject makes name the current project.
func (s *Service) SelectProject(name string) error {
	return s.store.SelectProject(name)
}

// requireProject checks that the project is registered.
func (s *Service) requireProject(project string) error {
	if project == "" {
		return ErrNoProject
	}
	ok, err := s.store.Exists(project)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q: %w", project, ErrProjectNotFound)
	}
	return nil
}

// Settings returns the project's dashboard settings.
func (s *Service) Settings(project string) (Settings, error) {
	if err := s.requireProject(project); err != nil {
		return Settings{}, err
	}
	return s.store.LoadSettings(project)
}

// SaveSettings replaces the project's dashboard settings.
func (s *Service) SaveSettings(ctx context.Context, project string, st Settings) error {
	if err := s.requireProject(project); err != nil {
		return err
	}
	if err := s.store.SaveSettings(project, st); err != nil {
		return err
	}
	s.record(ctx, project, ActionSettingsSaved, fmt.Sprintf("%d top column(s), date column %q", len(st.TopColumns), st.DateColumn))
	return nil
}

// AuditLog returns the project's audit trail, newest first.
func (s *Service) AuditLog(ctx context.Context, project string) ([]AuditEntry, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, project)
}

// Record appends an audit entry on behalf of another component.
func (s *Service) Record(ctx context.Context, project, action, details string) {
	s.record(ctx, project, action, details)
}

// Table returns the project's consolidated table, from cache when valid.
// The returned table is shared and must not be modified.
func (s *Service) Table(project string) (*xlsx.Sheet, error) {
	t, _, err := s.table(project)
	return t, err
}

func (s *Service) table(project string) (*xlsx.Sheet, time.Time, error) {
	if project == "" {
		return nil, time.Time{}, ErrNoProject
	}
	path := s.store.SnapshotPath(project)
	mtime, _, err := snapshotMTime(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	if t, ok := s.cache.Get(project, mtime); ok {
		return t, mtime, nil
	}
	t, mtime, err := readSnapshot(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	s.cache.Put(project, t, mtime)
	return t, mtime, nil
}

// saveTable persists t and drops everything derived from the old snapshot.
func (s *Service) saveTable(project string, t *xlsx.Sheet) error {
	if err := writeSnapshot(s.store.SnapshotPath(project), t); err != nil {
		return err
	}
	s.invalidate(project)
	return nil
}

// invalidate clears the cache entry and deletes the export artifact.
func (s *Service) invalidate(project string) {
	s.cache.Invalidate(project)
	if _, err := removeIfExists(s.store.ExportPath(project)); err != nil {
		slog.Warn("remove export cache failed", "project", project, "error", err)
	}
}

// ClearCache drops every cached table.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// MemoryStats reports cache and task usage.
func (s *Service) MemoryStats() MemoryStats {
	st := s.cache.Stats()
	return MemoryStats{
		CacheItems:  st.Items,
		CacheSizeMB: round(float64(st.Bytes)/(1024*1024), 2),
		ActiveTasks: s.tasks.ActiveCount(),
	}
}

// Shutdown waits for in-flight uploads and background tasks.
func (s *Service) Shutdown(ctx context.Context) error {
	return errors.Join(s.limiter.WaitForDrain(ctx), s.tasks.Drain(ctx))
}
