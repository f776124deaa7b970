package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/opsledger"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database  string
	Subject   string
	EventType string
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List operational events",
		Long: `List events from the operational ledger in insertion order.

Filters are conjunctive: passing both --subject and --type returns only
events matching both.

Examples:
  scrimshaw events --db ./shop.db
  scrimshaw events --db ./shop.db --subject org:acme/entity:quote:1
  scrimshaw events --db ./shop.db --type stage_started --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "filter by subject reference")
	cmd.Flags().StringVar(&opts.EventType, "type", "", "filter by event type")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger := opsledger.New(st, opsledger.Options{})
	events, err := ledger.Query(ctx, opsledger.Filter{
		SubjectRef: opts.Subject,
		EventType:  opts.EventType,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query events", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(events)
	}

	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "(no events)")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(w, "[%d] %s  %s  subject=%s\n", ev.ID, ev.CreatedAt, ev.Type, ev.SubjectRef)
		if opts.Verbose {
			if ev.Data != nil {
				encoded, err := json.Marshal(ev.Data)
				if err == nil {
					fmt.Fprintf(w, "     data: %s\n", encoded)
				}
			}
			fmt.Fprintf(w, "     provenance: %s@%s\n", ev.ServiceID, ev.Version)
		}
	}
	return nil
}
