package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/derived"
)

// derivedOptions holds the flags shared by the derived-state commands.
type derivedOptions struct {
	*RootOptions
	Database string
}

// newDerivedCommand builds a read-only derived-state command. Every derived
// view is recomputed from the ledgers at query time; nothing is cached.
func newDerivedCommand(rootOpts *RootOptions, use, short, long string,
	run func(ctx context.Context, eng *derived.Engine, opts *derivedOptions, cmd *cobra.Command) error,
) *cobra.Command {
	opts := &derivedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			return run(ctx, derived.New(st, time.Now), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// NewUnownedCommand creates the unowned command.
func NewUnownedCommand(rootOpts *RootOptions) *cobra.Command {
	return newDerivedCommand(rootOpts, "unowned",
		"List entities with no active owner",
		`List registered entities that have no active owner.

An unowned entity cannot receive declarations; this report is the work
queue for fixing that.

Example:
  scrimshaw unowned --db ./shop.db`,
		func(ctx context.Context, eng *derived.Engine, opts *derivedOptions, cmd *cobra.Command) error {
			entities, err := eng.UnownedEntities(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compute unowned entities", err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(entities)
			}
			w := cmd.OutOrStdout()
			if len(entities) == 0 {
				fmt.Fprintln(w, "(every entity is owned)")
				return nil
			}
			for _, e := range entities {
				fmt.Fprintf(w, "%s  registered=%s\n", e.EntityRef, e.CreatedAt)
			}
			return nil
		})
}

// NewDeferredCommand creates the deferred command.
func NewDeferredCommand(rootOpts *RootOptions) *cobra.Command {
	return newDerivedCommand(rootOpts, "deferred",
		"List entities past their attention cadence",
		`List entities whose most recent declaration is older than their
attention cadence, or that have never been declared on at all.

Example:
  scrimshaw deferred --db ./shop.db`,
		func(ctx context.Context, eng *derived.Engine, opts *derivedOptions, cmd *cobra.Command) error {
			entities, err := eng.DeferredEntities(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compute deferred entities", err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(entities)
			}
			w := cmd.OutOrStdout()
			if len(entities) == 0 {
				fmt.Fprintln(w, "(nothing deferred)")
				return nil
			}
			for _, e := range entities {
				if e.LastDeclaredAt == "" {
					fmt.Fprintf(w, "%s  cadence=%dd  never declared\n", e.EntityRef, e.CadenceDays)
					continue
				}
				fmt.Fprintf(w, "%s  cadence=%dd  last declared %s (%dd ago)\n",
					e.EntityRef, e.CadenceDays, e.LastDeclaredAt, e.DaysSince)
			}
			return nil
		})
}

// NewContinuityCommand creates the continuity command.
func NewContinuityCommand(rootOpts *RootOptions) *cobra.Command {
	return newDerivedCommand(rootOpts, "continuity",
		"List sustained reaffirmation runs",
		`List entity/scope pairs with a sustained run of reaffirmations since
their last reclassification. A long run means the recognized state has
stayed stable under repeated examination.

Example:
  scrimshaw continuity --db ./shop.db`,
		func(ctx context.Context, eng *derived.Engine, opts *derivedOptions, cmd *cobra.Command) error {
			runs, err := eng.ContinuityRuns(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compute continuity runs", err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(runs)
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "(no sustained runs)")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s in %s: %d reaffirmations (%s .. %s)\n",
					r.EntityRef, r.ScopeRef, r.Reaffirmations, r.FirstReaffirmed, r.LastReaffirmed)
			}
			return nil
		})
}

// NewTimeInStateCommand creates the time-in-state command.
func NewTimeInStateCommand(rootOpts *RootOptions) *cobra.Command {
	return newDerivedCommand(rootOpts, "time-in-state",
		"Show how long each recognized state has stood",
		`Show, for every entity/scope pair, the latest declaration and how many
days it has stood unchanged.

Example:
  scrimshaw time-in-state --db ./shop.db --format json`,
		func(ctx context.Context, eng *derived.Engine, opts *derivedOptions, cmd *cobra.Command) error {
			ages, err := eng.TimeInState(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compute time in state", err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(ages)
			}
			w := cmd.OutOrStdout()
			if len(ages) == 0 {
				fmt.Fprintln(w, "(no declarations)")
				return nil
			}
			for _, a := range ages {
				fmt.Fprintf(w, "%s in %s: %dd since %s (%s)\n",
					a.EntityRef, a.ScopeRef, a.DaysSince, a.DeclaredAt, a.Kind)
				if opts.Verbose {
					fmt.Fprintf(w, "     %q by %s\n", a.StateText, a.DeclaredBy)
				}
			}
			return nil
		})
}
