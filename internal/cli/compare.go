package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/qvalidate/internal/config"
	"github.com/roach88/qvalidate/internal/dataset"
	"github.com/roach88/qvalidate/internal/logging"
	"github.com/roach88/qvalidate/internal/status"
	"github.com/roach88/qvalidate/internal/stream"
	"github.com/roach88/qvalidate/internal/validate"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	ConfigPath string
	SubQueries []string

	// Flag values. Only flags set on the command line override the config.
	Input1Format      string
	Input2Format      string
	Epsilon           float64
	MaxErrors         int
	IgnoreOrdering    bool
	UseIterator       bool
	JSONSummaryFolder string
	Parallel          int
	TempDir           string
	CSVNullValue      string
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <input1> <input2> <query-stream-file>",
		Short: "Compare the query outputs of two runs",
		Long: `Compare the outputs of every query of a stream between two runs.

Each input is a directory holding one subdirectory per query. Rows are
compared value by value; float and decimal values match when their
relative difference is within --epsilon.

With --json-summary-folder, the queryValidationStatus field of each
query's run status record is set to Pass, Fail or NotAttempted.

Exit codes:
  0 - All queries matched
  1 - One or more queries failed
  2 - Command error (invalid paths, config, status records, etc.)

Examples:
  qvalidate compare ./cpu ./gpu ./streams/stream_0.sql
  qvalidate compare ./cpu ./gpu ./streams/stream_0.sql --ignore-ordering
  qvalidate compare ./cpu ./gpu ./stream.sql --input2-format csv --sub-queries query1,query18
  qvalidate compare ./cpu ./gpu ./stream.sql --json-summary-folder ./summaries --format json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, cmd, args[0], args[1], args[2])
		},
	}

	defaults := validate.DefaultOptions()
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&opts.Input1Format, "input1-format", string(dataset.FormatParquet), "format of the first input (parquet|orc|json|csv|sqlite)")
	cmd.Flags().StringVar(&opts.Input2Format, "input2-format", string(dataset.FormatParquet), "format of the second input (parquet|orc|json|csv|sqlite)")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", defaults.Epsilon, "relative tolerance for float and decimal values")
	cmd.Flags().IntVar(&opts.MaxErrors, "max-errors", defaults.MaxMismatches, "maximum mismatches reported per query (0 reports all)")
	cmd.Flags().BoolVar(&opts.IgnoreOrdering, "ignore-ordering", false, "sort rows before comparing them")
	cmd.Flags().BoolVar(&opts.UseIterator, "use-iterator", false, "stream rows instead of loading them into memory")
	cmd.Flags().StringVar(&opts.JSONSummaryFolder, "json-summary-folder", "", "folder of run status records to update")
	cmd.Flags().StringSliceVar(&opts.SubQueries, "sub-queries", nil, "comma separated subset of queries to compare, e.g. query1,query15_part2")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of queries compared at once")
	cmd.Flags().StringVar(&opts.TempDir, "temp-dir", "", "directory for spill files of streaming sorts")
	cmd.Flags().StringVar(&opts.CSVNullValue, "csv-null-value", "", `CSV field text read as NULL, e.g. "\N" (default: every empty field)`)

	return cmd
}

func runCompare(opts *CompareOptions, cmd *cobra.Command, input1, input2, streamFile string) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	queries, err := loadQueries(streamFile, opts.SubQueries)
	if err != nil {
		_ = formatter.Error(ErrCodeStream, err.Error(), nil)
		return err
	}
	formatter.VerboseLog("Comparing %d queries from %s", len(queries), streamFile)

	logger := logging.New(cmd.ErrOrStderr(), opts.Verbose)
	defer func() { _ = logger.Sync() }()

	f1, f2 := cfg.Formats()
	left := dataset.Source{Path: input1, Format: f1}
	right := dataset.Source{Path: input2, Format: f2}

	loader := dataset.NewLoader(logger,
		dataset.WithTempDir(cfg.TempDir),
		dataset.WithCSVNullValue(cfg.CSVNullValue),
	)
	comparator := validate.NewComparator(loader, validate.Options{
		Epsilon:        cfg.Epsilon,
		MaxMismatches:  cfg.MaxErrors,
		IgnoreOrdering: cfg.IgnoreOrdering,
		Streaming:      cfg.UseIterator,
		SkipQueries:    cfg.SkipQueries,
		ExcludeColumns: cfg.ExcludeColumns,
	}, logger)
	suite := validate.NewSuite(comparator, logger,
		validate.WithParallelism(cfg.Parallel),
		validate.WithRunIDGenerator(opts.runIDs),
	)

	result, err := suite.Run(cmd.Context(), queries, left, right)
	if err != nil {
		code := ErrCodeGeneric
		if validate.IsConfigError(err) {
			code = ErrCodeConfig
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "validation aborted", err)
	}

	var changes []status.Change
	if cfg.JSONSummaryFolder != "" {
		reconciler := status.NewReconciler(cfg.JSONSummaryFolder, logger.With(zap.String("run_id", result.RunID)))
		changes, err = reconciler.Reconcile(stream.IDs(queries), result.FailedSet())
		if err != nil {
			_ = formatter.Error(ErrCodeStatus, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to update run status records", err)
		}
	}

	if err := formatter.Success(newCompareReport(result, changes)); err != nil {
		return err
	}
	if !result.Passed() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d queries failed validation", len(result.Failed), len(result.Verdicts)))
	}
	return nil
}

// loadConfig reads the config file and environment, then applies every
// flag set on the command line.
func loadConfig(opts *CompareOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	flags := cmd.Flags()
	if flags.Changed("input1-format") {
		cfg.Input1Format = opts.Input1Format
	}
	if flags.Changed("input2-format") {
		cfg.Input2Format = opts.Input2Format
	}
	if flags.Changed("epsilon") {
		cfg.Epsilon = opts.Epsilon
	}
	if flags.Changed("max-errors") {
		cfg.MaxErrors = opts.MaxErrors
	}
	if flags.Changed("ignore-ordering") {
		cfg.IgnoreOrdering = opts.IgnoreOrdering
	}
	if flags.Changed("use-iterator") {
		cfg.UseIterator = opts.UseIterator
	}
	if flags.Changed("json-summary-folder") {
		cfg.JSONSummaryFolder = opts.JSONSummaryFolder
	}
	if flags.Changed("parallel") {
		cfg.Parallel = opts.Parallel
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = opts.TempDir
	}
	if flags.Changed("csv-null-value") {
		cfg.CSVNullValue = opts.CSVNullValue
	}

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}
