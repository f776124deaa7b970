package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/stateledger"
)

// AssignOptions holds flags for the assign command.
type AssignOptions struct {
	*RootOptions
	Database   string
	Owner      string
	AssignedBy string
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assign <entity-ref>",
		Short: "Assign ownership of an entity",
		Long: `Assign an owner to a registered entity.

Exactly one owner is active at a time: assigning closes out the previous
assignment and records who made the change. The ownership history is kept.

Examples:
  scrimshaw assign org:acme/entity:quote:1 --db ./shop.db \
    --owner org:acme/actor:jane --by org:acme/actor:admin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner actor reference (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&opts.AssignedBy, "by", "", "assigning actor reference (required)")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func runAssign(opts *AssignOptions, entityRef string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := stateledger.New(st, stateledger.Options{})
	id, err := ledger.AssignOwner(ctx, entityRef, opts.Owner, opts.AssignedBy)
	if err != nil {
		if isRecognitionRefusal(err) {
			_ = out.Error("refused", err.Error(), nil)
			return WrapExitError(ExitRefusal, "assignment refused", err)
		}
		return WrapExitError(ExitCommandError, "failed to assign owner", err)
	}

	return out.Success(fmt.Sprintf("assignment %d: %s -> %s", id, entityRef, opts.Owner))
}

// OwnerOptions holds flags for the owner command.
type OwnerOptions struct {
	*RootOptions
	Database string
}

// NewOwnerCommand creates the owner command.
func NewOwnerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OwnerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "owner <entity-ref>",
		Short: "Show the current owner of an entity",
		Long: `Show the active owner of a registered entity, if any.

Example:
  scrimshaw owner org:acme/entity:quote:1 --db ./shop.db`,
		Args:          cobra.ExactArgs(1),
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
			owner, owned, err := ledger.CurrentOwner(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to look up owner", err)
			}

			out := opts.formatter(cmd)
			if opts.Format == "json" {
				return out.Success(map[string]any{
					"entity_ref": args[0],
					"owner":      owner,
					"owned":      owned,
				})
			}
			if !owned {
				return out.Success(fmt.Sprintf("%s is unowned", args[0]))
			}
			return out.Success(fmt.Sprintf("%s is owned by %s", args[0], owner))
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
