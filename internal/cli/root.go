package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/scrimshaw/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the scrimshaw CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scrimshaw",
		Short: "Scrimshaw - dual append-only ledgers for the shop floor",
		Long: `Operational exhaust and explicit recognition, kept in separate
append-only ledgers over one SQLite file. Events record what happened;
declarations record what someone decided it means.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Operational ledger
	cmd.AddCommand(NewEmitCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	// Recognition ledger
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewEntitiesCommand(opts))
	cmd.AddCommand(NewAssignCommand(opts))
	cmd.AddCommand(NewOwnerCommand(opts))
	cmd.AddCommand(NewDeclareCommand(opts))
	cmd.AddCommand(NewDeclarationsCommand(opts))

	// Derived state
	cmd.AddCommand(NewUnownedCommand(opts))
	cmd.AddCommand(NewDeferredCommand(opts))
	cmd.AddCommand(NewContinuityCommand(opts))
	cmd.AddCommand(NewTimeInStateCommand(opts))

	// Cross-ledger
	cmd.AddCommand(NewPromisesCommand(opts))
	cmd.AddCommand(NewDwellCommand(opts))

	cmd.AddCommand(NewPreflightCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging configures the process-wide slog handler. All diagnostics go
// to stderr so JSON output on stdout stays parseable.
func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// openStore opens the ledger database, wrapping failures as command errors.
func openStore(path string) (*store.Store, error) {
	slog.Debug("opening ledger database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// formatter builds the output formatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
