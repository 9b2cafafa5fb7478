package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/risk"
)

// ResetTimeout is the maximum duration for destructive operations.
const ResetTimeout = 30 * time.Second

// ResetProject deletes the project's consolidated data and the risk scans
// computed from it. scans may be nil.
func ResetProject(ctx context.Context, svc *core.Service, scans *risk.Store, project string) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	return run(ctx, []func(context.Context) error{
		func(ctx context.Context) error { return svc.Reset(ctx, project) },
		deleteScans(scans, project),
	})
}

// DeleteProject removes the project, its data and its risk scans.
func DeleteProject(ctx context.Context, svc *core.Service, scans *risk.Store, project string) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	return run(ctx, []func(context.Context) error{
		func(ctx context.Context) error { return svc.DeleteProject(ctx, project) },
		deleteScans(scans, project),
	})
}

func deleteScans(scans *risk.Store, project string) func(context.Context) error {
	return func(ctx context.Context) error {
		if scans == nil {
			return nil
		}
		if _, err := scans.DeleteProject(ctx, project); err != nil {
			return fmt.Errorf("delete risk scans: %w", err)
		}
		return nil
	}
}

// run stops at the first failing step.
func run(ctx context.Context, steps []func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}
