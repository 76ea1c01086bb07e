package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/experiment"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Empty values fall back to the ARTDR_* environment (see internal/config).
	Database    string
	Python      string
	Catalog     string
	EnvFile     string
	MetricsFile string

	// Reducers replaces the back-ends built from the catalog (for testing).
	Reducers map[string]backend.Reducer

	// RunIDs replaces the UUIDv7 run id generator (for testing).
	RunIDs experiment.RunIDGenerator

	// Logger replaces the stderr JSON logger (for testing).
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the artdr CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts, so tests
// can pre-set the injection fields before flags are parsed.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artdr",
		Short: "artdr - dimensionality-reduction experiments over art embeddings",
		Long: `Run dimensionality-reduction experiments over precomputed image embeddings.

Each run samples a bounded subset of embeddings, projects it with a DR method
(falling back to alternates when a back-end is missing or fails), stores the
configuration and points in SQLite, and prints the joined payload.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging on stderr)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database (default $ARTDR_DB or art.sqlite)")
	flags.StringVar(&opts.Python, "python", "", "Python interpreter for external back-ends (default $ARTDR_PYTHON or python3)")
	flags.StringVar(&opts.Catalog, "catalog", "", "CUE method catalog replacing the built-in one")
	flags.StringVar(&opts.EnvFile, "env-file", "", "load settings from this .env file (default ./.env if present)")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewConfigsCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}
