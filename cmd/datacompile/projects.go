package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datacompile/internal/admin"
	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/risk"
	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(_ context.Context, env *admin.Env) error {
				projects, err := env.Service.ListProjects()
				if err != nil {
					return err
				}
				return printProjects(cmd.OutOrStdout(), env.Service, projects)
			})
		},
	}
}

func printProjects(out io.Writer, svc *core.Service, projects []core.ProjectInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tROWS\tCREATED\tDESCRIPTION")
	for _, p := range projects {
		mark := ""
		if p.Current {
			mark = "*"
		}
		st, err := svc.Stats(p.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", mark, p.Name, st.TotalRows, p.Created, p.Description)
	}
	return tw.Flush()
}

// projectFlag registers --project; an empty value means the current project.
func projectFlag(cmd *cobra.Command, project *string) {
	cmd.Flags().StringVarP(project, "project", "p", "", "Project name (default: current project)")
}

func resolveProject(env *admin.Env, project string) (string, error) {
	if project != "" {
		return project, nil
	}
	current, err := env.Service.CurrentProject()
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", core.ErrNoProject
	}
	return current, nil
}

func newImportCmd() *cobra.Command {
	var (
		project string
		create  bool
	)
	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Merge files into a project's consolidated table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, env *admin.Env) error {
				if create && project != "" {
					ok, err := env.Service.Store().Exists(project)
					if err != nil {
						return err
					}
					if !ok {
						if err := env.Service.CreateProject(ctx, project, ""); err != nil {
							return err
						}
					}
				}
				name, err := resolveProject(env, project)
				if err != nil {
					return err
				}

				files := make([]core.UploadFile, 0, len(args))
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					files = append(files, core.UploadFile{Name: filepath.Base(path), Data: data})
				}

				res, err := env.Service.Upload(ctx, name, files)
				if res != nil {
					for _, f := range res.FailedFiles {
						fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s\n", f)
					}
				}
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), core.FormatUserError(err))
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d file(s), %d rows added, %d rows total\n",
					name, res.FilesProcessed, res.RowsAdded, res.TotalRows)
				return nil
			})
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().BoolVar(&create, "create", false, "Create the project if it does not exist")
	return cmd
}

func newExportCmd() *cobra.Command {
	var project, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's consolidated table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(ctx context.Context, env *admin.Env) error {
				name, err := resolveProject(env, project)
				if err != nil {
					return err
				}
				switch format {
				case "xlsx":
					return exportXLSX(ctx, cmd.OutOrStdout(), env.Service, name, out)
				case "csv":
					return exportCSV(cmd.OutOrStdout(), env.Service, name, out)
				default:
					return fmt.Errorf("unknown format %q (want xlsx or csv)", format)
				}
			})
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "Output format: xlsx or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (xlsx default: print the cached export path; csv default: stdout)")
	return cmd
}

func exportXLSX(ctx context.Context, stdout io.Writer, svc *core.Service, project, out string) error {
	before, err := svc.ExportStatus(project)
	if err != nil {
		return err
	}
	path, err := svc.ExportXLSX(ctx, project)
	if err != nil {
		return err
	}
	after, err := svc.ExportStatus(project)
	if err != nil {
		return err
	}
	state := "regenerated"
	if before != nil && after != nil && before.ModTime.Equal(after.ModTime) {
		state = "cached"
	}

	if out == "" {
		fmt.Fprintf(stdout, "%s (%s)\n", path, state)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := xlsx.WriteFileAtomic(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes, %s)\n", out, len(data), state)
	return nil
}

func exportCSV(stdout io.Writer, svc *core.Service, project, out string) error {
	if out == "" {
		return svc.ExportCSV(project, stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := svc.ExportCSV(project, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newScanCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the risk checks over a project and store the findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(ctx context.Context, env *admin.Env) error {
				name, err := resolveProject(env, project)
				if err != nil {
					return err
				}
				scan, rep, err := runScan(ctx, env, name)
				if err != nil {
					return err
				}
				printScan(cmd.OutOrStdout(), scan, rep)
				return nil
			})
		},
	}
	projectFlag(cmd, &project)
	return cmd
}

func runScan(ctx context.Context, env *admin.Env, project string) (risk.Scan, risk.Report, error) {
	t, err := env.Service.Table(project)
	if err != nil {
		return risk.Scan{}, risk.Report{}, err
	}
	st, err := env.Service.Settings(project)
	if err != nil {
		return risk.Scan{}, risk.Report{}, err
	}
	rep := risk.Run(t, st)
	scan, err := env.Risk.SaveScan(ctx, project, rep)
	if err != nil {
		return risk.Scan{}, risk.Report{}, err
	}
	env.Service.Record(ctx, project, core.ActionRiskScan,
		fmt.Sprintf("%d finding(s): %d high, %d medium, %d low", scan.Findings, scan.High, scan.Medium, scan.Low))
	return scan, rep, nil
}

func printScan(out io.Writer, scan risk.Scan, rep risk.Report) {
	fmt.Fprintf(out, "scan %s: %d rows, %d finding(s) (%d high, %d medium, %d low)\n",
		scan.ID, rep.Summary.TotalRows, rep.Summary.TotalFindings, rep.Summary.High, rep.Summary.Medium, rep.Summary.Low)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, f := range rep.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Level, f.CheckType, f.Title, f.Detail)
	}
	tw.Flush()
}
