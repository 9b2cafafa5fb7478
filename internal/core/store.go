package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Per-project file names.
const (
	uploadsDirName   = "uploads"
	snapshotFileName = "consolidated_data.gob"
	exportFileName   = "consolidated_data.xlsx"
	settingsFileName = "settings.json"
	uploadLogName    = "upload_log.json"
	auditLogName     = "audit_log.json"
)

// ProjectStore keeps the project registry (config.json) and one directory
// per project under Projects/.
type ProjectStore struct {
	dataDir string
	now     func() time.Time

	mu sync.Mutex // guards config.json
}

type projectState struct {
	CurrentProject *string                `json:"current_project"`
	Projects       map[string]projectMeta `json:"projects"`
}

type projectMeta struct {
	Created     string `json:"created"`
	Description string `json:"description"`
}

// NewProjectStore returns a store rooted at dataDir, creating the directory
// layout if needed.
func NewProjectStore(dataDir string) (*ProjectStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "Projects"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &ProjectStore{dataDir: dataDir, now: time.Now}, nil
}

// DataDir returns the root directory.
func (s *ProjectStore) DataDir() string { return s.dataDir }

// Dir returns the directory of a project.
func (s *ProjectStore) Dir(project string) string {
	return filepath.Join(s.dataDir, "Projects", SafeFilename(project))
}

func (s *ProjectStore) UploadsDir(project string) string {
	return filepath.Join(s.Dir(project), uploadsDirName)
}

func (s *ProjectStore) SnapshotPath(project string) string {
	return filepath.Join(s.Dir(project), snapshotFileName)
}

func (s *ProjectStore) ExportPath(project string) string {
	return filepath.Join(s.Dir(project), exportFileName)
}

func (s *ProjectStore) settingsPath(project string) string {
	return filepath.Join(s.Dir(project), settingsFileName)
}

func (s *ProjectStore) uploadLogPath(project string) string {
	return filepath.Join(s.Dir(project), uploadLogName)
}

func (s *ProjectStore) auditLogPath(project string) string {
	return filepath.Join(s.Dir(project), auditLogName)
}

func (s *ProjectStore) statePath() string {
	return filepath.Join(s.dataDir, "config.json")
}

func (s *ProjectStore) loadState() (projectState, error) {
	st := projectState{Projects: map[string]projectMeta{}}
	if _, err := readJSON(s.statePath(), &st); err != nil {
		return st, err
	}
	if st.Projects == nil {
		st.Projects = map[string]projectMeta{}
	}
	return st, nil
}

func (s *ProjectStore) saveState(st projectState) error {
	return writeJSON(s.statePath(), st)
}

// ListProjects returns every project sorted by name.
func (s *ProjectStore) ListProjects() ([]ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return nil, err
	}
	current := ""
	if st.CurrentProject != nil {
		current = *st.CurrentProject
	}
	out := make([]ProjectInfo, 0, len(st.Projects))
	for name, meta := range st.Projects {
		out = append(out, ProjectInfo{
			Name:        name,
			Created:     meta.Created,
			Description: meta.Description,
			Current:     name == current,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateProject registers a project, creates its directories and default
// settings, and makes it current.
func (s *ProjectStore) CreateProject(name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" || SafeFilename(name) == "" {
		return ErrProjectName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return err
	}
	if _, ok := st.Projects[name]; ok {
		return fmt.Errorf("%q: %w", name, ErrProjectExists)
	}

	if err := os.MkdirAll(s.UploadsDir(name), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := writeJSON(s.settingsPath(name), Settings{TopColumns: []TopColumn{}}); err != nil {
		return err
	}

	st.Projects[name] = projectMeta{
		Created:     s.now().Format(time.RFC3339),
		Description: description,
	}
	st.CurrentProject = &name
	return s.saveState(st)
}

// DeleteProject removes a project and its directory. When it was current,
// the first remaining project by name becomes current.
func (s *ProjectStore) DeleteProject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return err
	}
	if _, ok := st.Projects[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrProjectNotFound)
	}
	if err := os.RemoveAll(s.Dir(name)); err != nil {
		return fmt.Errorf("remove project dir: %w", err)
	}
	delete(st.Projects, name)

	if st.CurrentProject != nil && *st.CurrentProject == name {
		st.CurrentProject = nil
		if len(st.Projects) > 0 {
			names := make([]string, 0, len(st.Projects))
			for n := range st.Projects {
				names = append(names, n)
			}
			sort.Strings(names)
			st.CurrentProject = &names[0]
		}
	}
	return s.saveState(st)
}

// SelectProject makes name the current project.
func (s *ProjectStore) SelectProject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return err
	}
	if _, ok := st.Projects[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrProjectNotFound)
	}
	st.CurrentProject = &name
	return s.saveState(st)
}

// CurrentProject returns the selected project or ErrNoProject.
func (s *ProjectStore) CurrentProject() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return "", err
	}
	if st.CurrentProject == nil || *st.CurrentProject == "" {
		return "", ErrNoProject
	}
	return *st.CurrentProject, nil
}

// Exists reports whether the project is registered.
func (s *ProjectStore) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState()
	if err != nil {
		return false, err
	}
	_, ok := st.Projects[name]
	return ok, nil
}

// LoadSettings returns the project's settings, or defaults when unset.
func (s *ProjectStore) LoadSettings(project string) (Settings, error) {
	st := Settings{TopColumns: []TopColumn{}}
	if _, err := readJSON(s.settingsPath(project), &st); err != nil {
		return st, err
	}
	if st.TopColumns == nil {
		st.TopColumns = []TopColumn{}
	}
	return st, nil
}

// SaveSettings replaces the project's settings.
func (s *ProjectStore) SaveSettings(project string, st Settings) error {
	if st.TopColumns == nil {
		st.TopColumns = []TopColumn{}
	}
	if err := os.MkdirAll(s.Dir(project), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	return writeJSON(s.settingsPath(project), st)
}

// LoadUploadLog returns the upload log in upload order.
func (s *ProjectStore) LoadUploadLog(project string) ([]UploadRecord, error) {
	var log []UploadRecord
	if _, err := readJSON(s.uploadLogPath(project), &log); err != nil {
		return nil, err
	}
	return log, nil
}

// SaveUploadLog replaces the upload log.
func (s *ProjectStore) SaveUploadLog(project string, log []UploadRecord) error {
	if log == nil {
		log = []UploadRecord{}
	}
	return writeJSON(s.uploadLogPath(project), log)
}

// readJSON decodes path into v. A missing file leaves v untouched and
// reports false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return xlsx.WriteFileAtomic(path, data, 0o644)
}

// removeIfExists deletes path and reports whether it existed.
func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
