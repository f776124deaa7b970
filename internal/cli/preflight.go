package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/preflight"
	"github.com/roach88/scrimshaw/internal/store"
)

// PreflightOptions holds flags for the preflight command.
type PreflightOptions struct {
	*RootOptions
	Database string
	LintDir  string
}

// NewPreflightCommand creates the preflight command.
func NewPreflightCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreflightOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Verify the append-only machinery is installed",
		Long: `Verify that the database carries every required table and every
append-only trigger, and report the ledger instance id. A missing
trigger means the ledger would accept silent mutation, so any failure
here should stop a deployment.

With --lint, additionally scan a Go source tree for raw SQL that writes
to the ledger tables outside the authorized write paths.

Examples:
  scrimshaw preflight --db ./shop.db
  scrimshaw preflight --db ./shop.db --lint ./`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreflight(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.LintDir, "lint", "", "also lint a source tree for unauthorized ledger SQL")

	return cmd
}

func runPreflight(opts *PreflightOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	// Open without touching the schema: the usual open path re-runs
	// CREATE TRIGGER IF NOT EXISTS, which would reinstall exactly the
	// objects this check exists to find missing.
	st, err := store.OpenExisting(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	report, err := preflight.CheckDatabase(ctx, st)
	if err != nil {
		_ = out.Error("preflight_failed", err.Error(), nil)
		return WrapExitError(ExitRefusal, "preflight failed", err)
	}

	var violations []preflight.Violation
	if opts.LintDir != "" {
		violations, err = preflight.LintSourceTree(opts.LintDir)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to lint source tree", err)
		}
		if len(violations) > 0 {
			_ = out.Error("unauthorized_ledger_sql",
				fmt.Sprintf("%d violation(s) found", len(violations)), violations)
			for _, v := range violations {
				fmt.Fprintln(cmd.ErrOrStderr(), "  "+v.String())
			}
			return NewExitError(ExitRefusal, "unauthorized ledger SQL found")
		}
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"instance_id": report.InstanceID,
			"tables":      report.Tables,
			"triggers":    report.Triggers,
			"linted":      opts.LintDir != "",
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ledger instance: %s\n", report.InstanceID)
	fmt.Fprintf(w, "tables:   %d present\n", len(report.Tables))
	fmt.Fprintf(w, "triggers: %d present\n", len(report.Triggers))
	if opts.LintDir != "" {
		fmt.Fprintf(w, "lint:     clean (%s)\n", opts.LintDir)
	}
	fmt.Fprintln(w, "preflight passed")
	return nil
}
