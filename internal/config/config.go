// Package config loads qvalidate settings from an optional YAML file and
// QVALIDATE_* environment variables.
package config

import (
	"fmt"
	"math"
	"slices"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/roach88/qvalidate/internal/dataset"
	"github.com/roach88/qvalidate/internal/validate"
)

// Config holds every setting of a validation run.
// Environment variables override YAML values. Command line flags, applied
// by the caller after Load, override both.
type Config struct {
	// Storage formats of the two inputs.
	Input1Format string `yaml:"input1_format" env:"QVALIDATE_INPUT1_FORMAT" env-default:"parquet"`
	Input2Format string `yaml:"input2_format" env:"QVALIDATE_INPUT2_FORMAT" env-default:"parquet"`

	// Epsilon is the relative tolerance for float and decimal values.
	Epsilon float64 `yaml:"epsilon" env:"QVALIDATE_EPSILON" env-default:"0.00001"`

	// MaxErrors caps the mismatches reported per query. 0 reports all.
	MaxErrors int `yaml:"max_errors" env:"QVALIDATE_MAX_ERRORS" env-default:"10"`

	IgnoreOrdering bool `yaml:"ignore_ordering" env:"QVALIDATE_IGNORE_ORDERING" env-default:"false"`

	// UseIterator streams rows instead of materializing them.
	UseIterator bool `yaml:"use_iterator" env:"QVALIDATE_USE_ITERATOR" env-default:"false"`

	// JSONSummaryFolder holds the run status records to reconcile.
	JSONSummaryFolder string `yaml:"json_summary_folder" env:"QVALIDATE_JSON_SUMMARY_FOLDER" env-default:""`

	// Parallel is the number of queries compared at once.
	Parallel int `yaml:"parallel" env:"QVALIDATE_PARALLEL" env-default:"1"`

	// TempDir holds spill databases of streaming sorts.
	TempDir string `yaml:"temp_dir" env:"QVALIDATE_TEMP_DIR" env-default:""`

	// CSVNullValue is the CSV field text read as NULL. Empty means every
	// empty field is NULL.
	CSVNullValue string `yaml:"csv_null_value" env:"QVALIDATE_CSV_NULL_VALUE" env-default:""`

	// SkipQueries match without reading data. Unset means
	// validate.DefaultSkipQueries; an empty YAML list skips nothing.
	SkipQueries []string `yaml:"skip_queries" env:"QVALIDATE_SKIP_QUERIES" env-separator:","`

	// ExcludeColumns maps a query id to columns dropped before comparing.
	// YAML only. Unset means validate.DefaultExcludeColumns.
	ExcludeColumns map[string][]string `yaml:"exclude_columns"`
}

// Load reads the YAML file at path with environment variable overrides.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if cfg.SkipQueries == nil {
		cfg.SkipQueries = slices.Clone(validate.DefaultSkipQueries)
	}
	if cfg.ExcludeColumns == nil {
		cfg.ExcludeColumns = validate.DefaultExcludeColumns()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and format names.
func (c *Config) Validate() error {
	if math.IsNaN(c.Epsilon) || math.IsInf(c.Epsilon, 0) || c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be a finite non-negative number, got %v", c.Epsilon)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max_errors must not be negative, got %d", c.MaxErrors)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	for _, f := range []string{c.Input1Format, c.Input2Format} {
		if _, err := dataset.ParseFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// Formats returns the parsed input formats. Call Validate first.
func (c *Config) Formats() (dataset.Format, dataset.Format) {
	f1, _ := dataset.ParseFormat(c.Input1Format)
	f2, _ := dataset.ParseFormat(c.Input2Format)
	return f1, f2
}
