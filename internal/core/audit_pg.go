package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const pgAuditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    project     TEXT NOT NULL,
    action      TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '',
    ip_address  TEXT NOT NULL DEFAULT '',
    user_agent  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_project ON audit_log (project, created_at DESC);
`

// pgAuditListLimit caps List to the same window the file log keeps.
const pgAuditListLimit = DefaultAuditEntries

// PgAuditLog mirrors audit entries into Postgres.
type PgAuditLog struct {
	db DBTX
}

// NewPgAuditLog returns a Postgres audit log. Call EnsureSchema once at startup.
func NewPgAuditLog(db DBTX) *PgAuditLog {
	return &PgAuditLog{db: db}
}

// EnsureSchema creates the audit_log table if it does not exist.
func (l *PgAuditLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, pgAuditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (l *PgAuditLog) Record(ctx context.Context, project, action, details string) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO audit_log (project, action, details, ip_address, user_agent) VALUES ($1, $2, $3, $4, $5)`,
		project, action, details, ClientIP(ctx), ClientUserAgent(ctx))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (l *PgAuditLog) List(ctx context.Context, project string) ([]AuditEntry, error) {
	rows, err := l.db.Query(ctx,
		`SELECT created_at, action, details, ip_address, user_agent
		   FROM audit_log WHERE project = $1
		  ORDER BY created_at DESC, id DESC LIMIT $2`,
		project, pgAuditListLimit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			at time.Time
		)
		if err := rows.Scan(&at, &e.Action, &e.Details, &e.IPAddress, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = at.Local().Format(TimestampLayout)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes entries older than days and returns how many were removed.
func (l *PgAuditLog) Purge(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	tag, err := l.db.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < now() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
