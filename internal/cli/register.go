package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/refs"
	"github.com/roach88/scrimshaw/internal/stateledger"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Database    string
	Label       string
	CadenceDays int
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <entity-ref>",
		Short: "Register an entity for recognition",
		Long: `Register an entity in the recognition registry.

Registration is what makes an entity eligible for ownership and
declarations. The attention cadence says how often, in days, someone is
expected to re-examine the entity; the deferred report is driven by it.

Registering an already-registered entity is a no-op.

Examples:
  scrimshaw register org:acme/entity:quote:1 --db ./shop.db --cadence 7
  scrimshaw register org:acme/entity:customer:12 --db ./shop.db --cadence 30 --label "Stanton Works"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Label, "label", "", "human-readable label")
	cmd.Flags().IntVar(&opts.CadenceDays, "cadence", 7, "attention cadence in days")

	return cmd
}

func runRegister(opts *RegisterOptions, entityRef string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := stateledger.New(st, stateledger.Options{})
	created, err := ledger.RegisterEntity(ctx, entityRef, opts.Label, opts.CadenceDays)
	if err != nil {
		if isRecognitionRefusal(err) {
			_ = out.Error("refused", err.Error(), nil)
			return WrapExitError(ExitRefusal, "registration refused", err)
		}
		return WrapExitError(ExitCommandError, "failed to register entity", err)
	}

	if !created {
		return out.Success(fmt.Sprintf("already registered: %s", entityRef))
	}
	return out.Success(fmt.Sprintf("registered %s (cadence %d days)", entityRef, opts.CadenceDays))
}

// isRecognitionRefusal reports whether err is a deliberate refusal by the
// recognition ledger, as opposed to an operational failure.
func isRecognitionRefusal(err error) bool {
	var validationErr *refs.ValidationError
	var refusalErr *stateledger.RefusalError
	var shapeErr *stateledger.ShapeError
	var unknownErr *stateledger.UnknownEntityError
	return errors.As(err, &validationErr) ||
		errors.As(err, &refusalErr) ||
		errors.As(err, &shapeErr) ||
		errors.As(err, &unknownErr)
}

// EntitiesOptions holds flags for the entities command.
type EntitiesOptions struct {
	*RootOptions
	Database string
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntitiesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List registered entities",
		Long: `List every entity in the recognition registry, newest first.

Example:
  scrimshaw entities --db ./shop.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			ledger := stateledger.New(st, stateledger.Options{})
			entities, err := ledger.Entities(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list entities", err)
			}

			if opts.Format == "json" {
				return opts.formatter(cmd).Success(entities)
			}

			w := cmd.OutOrStdout()
			if len(entities) == 0 {
				fmt.Fprintln(w, "(no entities)")
				return nil
			}
			for _, e := range entities {
				line := fmt.Sprintf("%s  cadence=%dd  registered=%s", e.Ref, e.CadenceDays, e.CreatedAt)
				if e.Label != "" {
					line += fmt.Sprintf("  (%s)", e.Label)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
