package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/stateledger"
)

// DeclareOptions holds flags for the declare command.
type DeclareOptions struct {
	*RootOptions
	Database       string
	Scope          string
	Actor          string
	Text           string
	Reclassify     bool
	Classification string
	OpsEvidence    string
	Evidence       []string
	Supersedes     int64
}

// NewDeclareCommand creates the declare command.
func NewDeclareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeclareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "declare <entity-ref>",
		Short: "Declare recognized state for an entity",
		Long: `Append a recognition declaration for an entity you own.

Only the entity's current owner may declare. A declaration either
reaffirms the standing classification (the default) or reclassifies it
(--reclassify), which resets the entity's continuity run in that scope.

Evidence references are stored inert: the ledger records them but never
follows or checks them.

Examples:
  scrimshaw declare org:acme/entity:quote:1 --db ./shop.db \
    --scope org:acme/scope:reliability --actor org:acme/actor:jane \
    --text "customer confirmed the revised tolerances"

  scrimshaw declare org:acme/entity:quote:1 --db ./shop.db \
    --scope org:acme/scope:reliability --actor org:acme/actor:jane \
    --text "quote superseded by rev c" --reclassify --supersedes 14`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeclare(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "scope reference (required)")
	_ = cmd.MarkFlagRequired("scope")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "declaring actor reference (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().StringVar(&opts.Text, "text", "", "free-prose state text (required)")
	_ = cmd.MarkFlagRequired("text")
	cmd.Flags().BoolVar(&opts.Reclassify, "reclassify", false, "declare a reclassification instead of a reaffirmation")
	cmd.Flags().StringVar(&opts.Classification, "classification", "", "optional classification token")
	cmd.Flags().StringVar(&opts.OpsEvidence, "ops-evidence", "", "operational event reference, stored inert")
	cmd.Flags().StringArrayVar(&opts.Evidence, "evidence", nil, "evidence reference, repeatable, stored inert")
	cmd.Flags().Int64Var(&opts.Supersedes, "supersedes", 0, "advisory id of the superseded declaration")

	return cmd
}

func runDeclare(opts *DeclareOptions, entityRef string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	kind := stateledger.KindReaffirmation
	if opts.Reclassify {
		kind = stateledger.KindReclassification
	}

	ledger := stateledger.New(st, stateledger.Options{})
	id, err := ledger.EmitDeclaration(ctx, stateledger.DeclarationInput{
		EntityRef:      entityRef,
		ScopeRef:       opts.Scope,
		StateText:      opts.Text,
		ActorRef:       opts.Actor,
		Kind:           kind,
		Classification: opts.Classification,
		OpsEvidenceRef: opts.OpsEvidence,
		EvidenceRefs:   opts.Evidence,
		SupersedesID:   opts.Supersedes,
	})
	if err != nil {
		if isRecognitionRefusal(err) {
			_ = out.Error("refused", err.Error(), nil)
			return WrapExitError(ExitRefusal, "declaration refused", err)
		}
		return WrapExitError(ExitCommandError, "failed to emit declaration", err)
	}

	return out.Success(fmt.Sprintf("declaration %d: %s %s in %s", id, kind, entityRef, opts.Scope))
}

// DeclarationsOptions holds flags for the declarations command.
type DeclarationsOptions struct {
	*RootOptions
	Database string
	Entity   string
	Scope    string
	Actor    string
	Limit    int
}

// NewDeclarationsCommand creates the declarations command.
func NewDeclarationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeclarationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "declarations",
		Short: "List recognition declarations",
		Long: `List declarations from the recognition ledger, newest first.

Filters are conjunctive.

Examples:
  scrimshaw declarations --db ./shop.db --entity org:acme/entity:quote:1
  scrimshaw declarations --db ./shop.db --actor org:acme/actor:jane --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeclarations(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "filter by entity reference")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "filter by scope reference")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter by declaring actor")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum declarations to return (0 = no limit)")

	return cmd
}

func runDeclarations(opts *DeclarationsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := stateledger.New(st, stateledger.Options{})
	decls, err := ledger.Declarations(ctx, stateledger.DeclFilter{
		EntityRef: opts.Entity,
		ScopeRef:  opts.Scope,
		ActorRef:  opts.Actor,
		Limit:     opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query declarations", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(decls)
	}

	w := cmd.OutOrStdout()
	if len(decls) == 0 {
		fmt.Fprintln(w, "(no declarations)")
		return nil
	}
	for _, d := range decls {
		fmt.Fprintf(w, "[%d] %s  %s  %s in %s\n", d.ID, d.DeclaredAt, d.Kind, d.EntityRef, d.ScopeRef)
		fmt.Fprintf(w, "     %q by %s\n", d.StateText, d.DeclaredBy)
		if opts.Verbose {
			if d.Classification != "" {
				fmt.Fprintf(w, "     classification: %s\n", d.Classification)
			}
			if d.SupersedesID != 0 {
				fmt.Fprintf(w, "     supersedes: %d\n", d.SupersedesID)
			}
			if d.OpsEvidenceRef != "" {
				fmt.Fprintf(w, "     ops evidence: %s\n", d.OpsEvidenceRef)
			}
			if len(d.EvidenceRefs) > 0 {
				fmt.Fprintf(w, "     evidence: %s\n", strings.Join(d.EvidenceRefs, ", "))
			}
		}
	}
	return nil
}
