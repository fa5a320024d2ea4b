package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/qvalidate/internal/validate"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	runIDs validate.RunIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// Option configures the root command.
type Option func(*RootOptions)

// WithRunIDGenerator replaces the random run id generator.
func WithRunIDGenerator(g validate.RunIDGenerator) Option {
	return func(o *RootOptions) { o.runIDs = g }
}

// NewRootCommand creates the root command for the qvalidate CLI.
func NewRootCommand(options ...Option) *cobra.Command {
	opts := &RootOptions{runIDs: validate.UUIDGenerator{}}
	for _, o := range options {
		o(opts)
	}

	cmd := &cobra.Command{
		Use:   "qvalidate",
		Short: "qvalidate - benchmark query output validation",
		Long: `Compare the outputs of two runs of a benchmark query stream.

Results are compared value by value with a relative tolerance for
floating point and decimal columns, optionally ignoring row order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewQueriesCommand(opts))

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting structured output
		Verbose:   opts.Verbose,
	}
}
