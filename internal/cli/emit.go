package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/config"
	"github.com/roach88/scrimshaw/internal/opsledger"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Database string
	Subject  string
	Data     string
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <event-type>",
		Short: "Append an event to the operational ledger",
		Long: `Append one event to the operational exhaust ledger.

Event types must be descriptive: they say what happened, never whether it
was good or bad. Judgmental vocabulary is refused. The subject is a loose
reference string and does not need to name a registered entity.

Provenance (service id, version, debug tag) comes from the environment;
see scrimshaw's SCRIMSHAW_* variables.

Examples:
  scrimshaw emit quote_sent --db ./shop.db --subject org:acme/entity:quote:1
  scrimshaw emit stage_started --db ./shop.db --subject org:acme/entity:order:9 --data '{"stage":"machining"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "subject reference (defaults to \"unknown\")")
	cmd.Flags().StringVar(&opts.Data, "data", "", "event data as a JSON object")

	return cmd
}

func runEmit(opts *EmitOptions, eventType string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	var data map[string]any
	if opts.Data != "" {
		if err := json.Unmarshal([]byte(opts.Data), &data); err != nil {
			return WrapExitError(ExitCommandError, "invalid --data JSON", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := opsledger.New(st, opsledger.Options{
		ServiceID: cfg.ServiceID,
		Version:   cfg.Version,
		DebugTag:  cfg.DebugTag,
	})

	id, err := ledger.Emit(ctx, eventType, opts.Subject, data)
	if err != nil {
		var vocabErr *opsledger.VocabularyError
		if errors.As(err, &vocabErr) {
			_ = out.Error("refused", err.Error(), nil)
			return WrapExitError(ExitRefusal, "event refused", err)
		}
		return WrapExitError(ExitCommandError, "failed to emit event", err)
	}

	return out.Success(fmt.Sprintf("emitted event %d (%s)", id, eventType))
}
