// Command datacompile consolidates spreadsheets into projects and exports
// or scans them from the command line, against the same data directory as
// the server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datacompile/internal/admin"
	"github.com/JonMunkholm/datacompile/internal/config"
	"github.com/JonMunkholm/datacompile/internal/logging"
)

func main() {
	_ = godotenv.Overload()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "datacompile",
		Short:         "Consolidate spreadsheet uploads into per-project tables",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newInspectCmd(),
		newProjectsCmd(),
		newImportCmd(),
		newExportCmd(),
		newScanCmd(),
	)
	return root
}

// openEnv loads the configuration and opens the project store. Logs go to
// stderr so command output stays clean.
func openEnv(ctx context.Context) (*admin.Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)))
	return admin.Open(ctx, cfg)
}

// withEnv runs fn against an opened Env and waits for its background work.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *admin.Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := fn(ctx, env); err != nil {
		return err
	}
	return env.Service.Shutdown(ctx)
}
