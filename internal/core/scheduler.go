package core

// scheduler.go runs periodic maintenance:
//  1. Sweep expired entries from the table cache
//  2. Prune finished background tasks
//  3. Purge old rows from the Postgres audit mirror, when one is configured
//
// The scheduler is long-running and stops with its context. A failing step
// is logged and never stops the loop.

import (
	"context"
	"log/slog"
	"time"
)

// AuditPurger deletes audit entries older than a number of days.
type AuditPurger interface {
	Purge(ctx context.Context, days int) (int64, error)
}

// MaintenanceConfig holds configuration for the maintenance scheduler.
// Zero values fall back to the defaults noted per field.
type MaintenanceConfig struct {
	Interval      time.Duration // How often to run (default: 1m)
	TaskMaxAge    time.Duration // Finished tasks kept this long (default: 1h)
	RetentionDays int           // Audit mirror retention; 0 disables purging
	Purger        AuditPurger   // Optional audit mirror
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.TaskMaxAge <= 0 {
		c.TaskMaxAge = time.Hour
	}
	return c
}

// StartMaintenance runs one maintenance pass immediately, then every
// Interval until ctx is cancelled. It blocks; run it in a goroutine.
func (s *Service) StartMaintenance(ctx context.Context, cfg MaintenanceConfig) {
	cfg = cfg.withDefaults()
	slog.Info("maintenance scheduler started",
		"interval", cfg.Interval.String(),
		"task_max_age", cfg.TaskMaxAge.String(),
		"retention_days", cfg.RetentionDays,
	)

	s.runMaintenance(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.runMaintenance(ctx, cfg)
		}
	}
}

// runMaintenance performs one pass.
func (s *Service) runMaintenance(ctx context.Context, cfg MaintenanceConfig) {
	start := time.Now()

	swept := s.cache.Sweep()
	pruned := s.tasks.Prune(cfg.TaskMaxAge)
	if swept > 0 || pruned > 0 {
		slog.Debug("maintenance swept caches", "cache_entries", swept, "tasks", pruned)
	}

	if cfg.Purger != nil && cfg.RetentionDays > 0 {
		purgeStart := time.Now()
		purged, err := cfg.Purger.Purge(ctx, cfg.RetentionDays)
		if err != nil {
			slog.Error("audit purge failed", "error", err)
		} else if purged > 0 {
			slog.Info("purged old audit entries",
				"entries_purged", purged,
				"duration_ms", time.Since(purgeStart).Milliseconds(),
			)
		}
	}

	slog.Debug("maintenance completed", "duration_ms", time.Since(start).Milliseconds())
}
