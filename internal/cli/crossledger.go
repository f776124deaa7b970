package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/config"
	"github.com/roach88/scrimshaw/internal/crossledger"
)

// PromisesOptions holds flags for the promises command.
type PromisesOptions struct {
	*RootOptions
	Database   string
	Scope      string
	ConfirmsBy string
}

// NewPromisesCommand creates the promises command.
func NewPromisesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PromisesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "promises",
		Short: "List declared deadlines with no confirming event",
		Long: `List entities that carry a deadline declaration in the given scope
but have no operational event of the confirming type.

The promise convention is yours to choose: any scope whose declarations
carry a JSON {"deadline": ...} state text, paired with any event type.
A declaration in the scope whose state text does not carry a deadline
fails the query outright.

Examples:
  scrimshaw promises --db ./shop.db \
    --scope org:acme/scope:promise:response_by --confirmed-by response_received`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromises(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "promise scope reference (required)")
	_ = cmd.MarkFlagRequired("scope")
	cmd.Flags().StringVar(&opts.ConfirmsBy, "confirmed-by", "", "event type that settles the promise (required)")
	_ = cmd.MarkFlagRequired("confirmed-by")

	return cmd
}

func runPromises(opts *PromisesOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	queries := crossledger.New(st, nil, nil)
	promises, err := queries.OpenPromises(ctx, crossledger.PromiseConvention{
		ScopeRef:            opts.Scope,
		ConfirmingEventType: opts.ConfirmsBy,
	})
	if err != nil {
		var payloadErr *crossledger.PayloadError
		if errors.As(err, &payloadErr) {
			_ = out.Error("malformed_payload", err.Error(), nil)
			return WrapExitError(ExitRefusal, "promise query failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to query promises", err)
	}

	if opts.Format == "json" {
		return out.Success(promises)
	}

	w := cmd.OutOrStdout()
	if len(promises) == 0 {
		fmt.Fprintln(w, "(no open promises)")
		return nil
	}
	for _, p := range promises {
		fmt.Fprintf(w, "%s  deadline=%s  declared %s by %s\n",
			p.EntityRef, p.Deadline, p.DeclaredAt, p.DeclaredBy)
	}
	return nil
}

// DwellOptions holds flags for the dwell command.
type DwellOptions struct {
	*RootOptions
	Database string
	Subject  string
}

// NewDwellCommand creates the dwell command.
func NewDwellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DwellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dwell",
		Short: "Measure stage dwell against expectations",
		Long: `Pair stage_started and stage_completed events and measure each dwell
against the stage expectation table. Stages still open are measured to
the current time.

The expectation table comes from SCRIMSHAW_STAGE_EXPECTATIONS (a CUE
file of stage: seconds entries) or falls back to the built-in defaults.

Examples:
  scrimshaw dwell --db ./shop.db
  scrimshaw dwell --db ./shop.db --subject org:acme/entity:order:9`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDwell(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "limit to one subject reference")

	return cmd
}

func runDwell(opts *DwellOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var expectations crossledger.StageExpectations
	if cfg.StageExpectationsPath != "" {
		expectations, err = crossledger.LoadStageExpectations(cfg.StageExpectationsPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load stage expectations", err)
		}
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	queries := crossledger.New(st, expectations, nil)
	dwells, err := queries.DwellVsExpectation(ctx, opts.Subject)
	if err != nil {
		var payloadErr *crossledger.PayloadError
		if errors.As(err, &payloadErr) {
			_ = out.Error("malformed_payload", err.Error(), nil)
			return WrapExitError(ExitRefusal, "dwell query failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to query dwell", err)
	}

	if opts.Format == "json" {
		return out.Success(dwells)
	}

	w := cmd.OutOrStdout()
	if len(dwells) == 0 {
		fmt.Fprintln(w, "(no stage events)")
		return nil
	}
	for _, d := range dwells {
		status := "done"
		if d.Open {
			status = "open"
		}
		fmt.Fprintf(w, "%s  %s  %s  elapsed=%s expected=%s delta=%s\n",
			d.SubjectRef, d.Stage, status,
			formatDuration(d.Elapsed), formatDuration(d.Expected), formatDelta(d.Delta))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

func formatDelta(d time.Duration) string {
	if d >= 0 {
		return "+" + formatDuration(d)
	}
	return formatDuration(d)
}
