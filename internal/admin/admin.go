// Package admin wires the stores and services shared by the server and the
// command-line tool, and holds the administrative operations both of them
// expose.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/datacompile/internal/config"
	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/risk"
	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// Env is an opened application: the service, the risk scan store and the
// optional Postgres audit mirror.
type Env struct {
	Config  *config.Config
	Service *core.Service
	Risk    *risk.Store

	// Pool and Audit are nil unless DATABASE_URL is set.
	Pool  *pgxpool.Pool
	Audit *core.PgAuditLog
}

// Open builds an Env from cfg. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config) (*Env, error) {
	env := &Env{Config: cfg}

	if cfg.Database.Enabled() {
		pool, err := openPool(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		env.Pool = pool
		env.Audit = core.NewPgAuditLog(pool)
		if err := env.Audit.EnsureSchema(ctx); err != nil {
			env.Close()
			return nil, fmt.Errorf("audit schema: %w", err)
		}
	}

	pkg, err := xlsx.ReaderFor(cfg.Upload.Reader)
	if err != nil {
		env.Close()
		return nil, err
	}
	opts := core.Options{
		DataDir:  cfg.Storage.DataDir,
		CacheTTL: cfg.Cache.TTL,
		Decoder: xlsx.NewDecoder(pkg, xlsx.CSVOptions{
			ChunkThreshold: cfg.Upload.ChunkThreshold,
			ChunkRows:      cfg.Upload.ChunkRows,
		}),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		AuditMaxEntries:   cfg.Audit.MaxEntries,
		Limiter:           core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		PrewarmExport:     cfg.Cache.PrewarmExport,
	}
	if env.Audit != nil {
		opts.AuditMirror = env.Audit
	}
	if env.Service, err = core.NewService(opts); err != nil {
		env.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	if env.Risk, err = risk.OpenStore(cfg.RiskDBPath()); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func openPool(ctx context.Context, db *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to audit database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to audit database")
	}
	return pool, nil
}

// Maintenance returns the scheduler settings for this Env.
func (e *Env) Maintenance() core.MaintenanceConfig {
	mc := core.MaintenanceConfig{Interval: e.Config.Cache.SweepInterval}
	if e.Audit != nil {
		mc.Purger = e.Audit
		mc.RetentionDays = e.Config.Audit.RetentionDays
	}
	return mc
}

// Close releases the stores. It does not wait for running work; call
// Service.Shutdown first for that.
func (e *Env) Close() error {
	var errs []error
	if e.Risk != nil {
		errs = append(errs, e.Risk.Close())
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	return errors.Join(errs...)
}
