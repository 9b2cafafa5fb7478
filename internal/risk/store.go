package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrScanNotFound is returned for an unknown scan id.
var ErrScanNotFound = errors.New("risk scan not found")

// DefaultScanLimit is how many scans ListScans returns when no limit is given.
const DefaultScanLimit = 10

// createdLayout sorts lexically in time order.
const createdLayout = "2006-01-02T15:04:05.000000Z"

// Scan is one stored run of the checks.
type Scan struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	TotalRows int       `json:"total_rows"`
	Findings  int       `json:"findings"`
	High      int       `json:"high_risk"`
	Medium    int       `json:"medium_risk"`
	Low       int       `json:"low_risk"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps scans and their findings in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (creating if needed) the database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create risk db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open risk db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init risk schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS risk_scans (
	id          TEXT PRIMARY KEY,
	project     TEXT NOT NULL,
	total_rows  INTEGER NOT NULL DEFAULT 0,
	findings    INTEGER NOT NULL DEFAULT 0,
	high_risk   INTEGER NOT NULL DEFAULT 0,
	medium_risk INTEGER NOT NULL DEFAULT 0,
	low_risk    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
	);`,
		`CREATE TABLE IF NOT EXISTS risk_findings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id     TEXT NOT NULL REFERENCES risk_scans(id) ON DELETE CASCADE,
	check_type  TEXT NOT NULL,
	level       TEXT NOT NULL,
	title       TEXT NOT NULL,
	detail      TEXT,
	evidence    TEXT,
	stats       TEXT
	);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_project ON risk_scans(project, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_scan ON risk_findings(scan_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveScan stores the report and its findings in one transaction.
func (s *Store) SaveScan(ctx context.Context, project string, r Report) (Scan, error) {
	scan := Scan{
		ID:        uuid.New().String(),
		Project:   project,
		TotalRows: r.Summary.TotalRows,
		Findings:  r.Summary.TotalFindings,
		High:      r.Summary.High,
		Medium:    r.Summary.Medium,
		Low:       r.Summary.Low,
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Scan{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO risk_scans(id,project,total_rows,findings,high_risk,medium_risk,low_risk,created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		scan.ID, scan.Project, scan.TotalRows, scan.Findings, scan.High, scan.Medium, scan.Low,
		scan.CreatedAt.Format(createdLayout))
	if err != nil {
		return Scan{}, fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO risk_findings(scan_id,check_type,level,title,detail,evidence,stats) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return Scan{}, fmt.Errorf("prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range r.Findings {
		evidence := f.Evidence
		if evidence == nil {
			evidence = []any{}
		}
		ev, err := json.Marshal(evidence)
		if err != nil {
			return Scan{}, fmt.Errorf("encode evidence: %w", err)
		}
		st, err := json.Marshal(f.Stats)
		if err != nil {
			return Scan{}, fmt.Errorf("encode stats: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, scan.ID, f.CheckType, string(f.Level), f.Title, f.Detail, string(ev), string(st)); err != nil {
			return Scan{}, fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Scan{}, fmt.Errorf("commit: %w", err)
	}
	return scan, nil
}

// ListScans returns the project's most recent scans, newest first.
func (s *Store) ListScans(ctx context.Context, project string, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,project,total_rows,findings,high_risk,medium_risk,low_risk,created_at
		 FROM risk_scans WHERE project = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		project, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var sc Scan
		var created string
		if err := rows.Scan(&sc.ID, &sc.Project, &sc.TotalRows, &sc.Findings, &sc.High, &sc.Medium, &sc.Low, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.CreatedAt, _ = time.Parse(createdLayout, created)
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Findings returns a scan's findings ordered high to low.
func (s *Store) Findings(ctx context.Context, scanID string) ([]Finding, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM risk_scans WHERE id = ?`, scanID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", scanID, ErrScanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup scan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,check_type,level,title,detail,evidence,stats FROM risk_findings WHERE scan_id = ?
		 ORDER BY CASE level WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, id`,
		scanID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var f Finding
		var level string
		var detail, evidence, stats sql.NullString
		if err := rows.Scan(&f.ID, &f.CheckType, &level, &f.Title, &detail, &evidence, &stats); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Level = Level(level)
		f.Detail = detail.String
		f.Evidence = []any{}
		if evidence.Valid {
			if err := json.Unmarshal([]byte(evidence.String), &f.Evidence); err != nil {
				f.Evidence = []any{}
			}
		}
		if stats.Valid && stats.String != "null" {
			_ = json.Unmarshal([]byte(stats.String), &f.Stats)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// DeleteProject removes every scan recorded for project.
func (s *Store) DeleteProject(ctx context.Context, project string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM risk_scans WHERE project = ?`, project)
	if err != nil {
		return 0, fmt.Errorf("delete scans: %w", err)
	}
	return res.RowsAffected()
}
