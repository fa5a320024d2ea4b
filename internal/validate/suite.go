package validate

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/qvalidate/internal/dataset"
	"github.com/roach88/qvalidate/internal/stream"
)

// RunIDGenerator produces the id stamped on a suite result.
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUIDv4 run ids.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Suite runs a Comparator over every query of a stream.
type Suite struct {
	comparator  *Comparator
	logger      *zap.Logger
	parallelism int
	runIDs      RunIDGenerator
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithParallelism runs up to n queries at once. Values below 2 run
// queries sequentially.
func WithParallelism(n int) SuiteOption {
	return func(s *Suite) { s.parallelism = n }
}

// WithRunIDGenerator replaces the UUID run id generator.
func WithRunIDGenerator(g RunIDGenerator) SuiteOption {
	return func(s *Suite) { s.runIDs = g }
}

// NewSuite creates a Suite. A nil logger discards log output.
func NewSuite(c *Comparator, logger *zap.Logger, opts ...SuiteOption) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Suite{comparator: c, logger: logger, parallelism: 1, runIDs: UUIDGenerator{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run compares every query, reading each query's output from the
// subdirectory of left and right named after its id.
//
// Verdicts are returned in suite order whatever the parallelism. A query
// whose data cannot be read gets an errored verdict and counts as failed;
// the remaining queries still run. Run itself fails only on configuration
// errors and context cancellation.
func (s *Suite) Run(ctx context.Context, queries []stream.Query, left, right dataset.Source) (*SuiteResult, error) {
	for _, src := range []dataset.Source{left, right} {
		if err := checkRoot(src); err != nil {
			return nil, err
		}
	}

	result := &SuiteResult{
		RunID:    s.runIDs.Generate(),
		Verdicts: make([]Verdict, len(queries)),
		Failed:   []string{},
	}
	logger := s.logger.With(zap.String("run_id", result.RunID))
	logger.Info("starting validation",
		zap.Int("queries", len(queries)),
		zap.Stringer("left", left),
		zap.Stringer("right", right),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.parallelism))

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := s.comparator.CompareQuery(gctx, left.Join(q.ID), right.Join(q.ID), q.ID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				v.Outcome = OutcomeError
				v.Error = err.Error()
			}
			result.Verdicts[i] = v
			logVerdict(logger, q, v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, v := range result.Verdicts {
		if !v.Matched {
			result.Failed = append(result.Failed, v.Query)
		}
	}
	if len(result.Failed) > 0 {
		logger.Warn("unmatched queries", zap.Strings("queries", result.Failed))
	} else {
		logger.Info("all queries matched")
	}
	return result, nil
}

func checkRoot(src dataset.Source) error {
	info, err := os.Stat(src.Path)
	if err != nil {
		return NewConfigError("input path", err)
	}
	if !info.IsDir() {
		return NewConfigError(fmt.Sprintf("input path %s is not a directory", src.Path), nil)
	}
	return nil
}

func logVerdict(logger *zap.Logger, q stream.Query, v Verdict) {
	fields := []zap.Field{
		zap.String("query", q.ID),
		zap.Int("position", q.Position),
		zap.String("outcome", string(v.Outcome)),
	}
	switch v.Outcome {
	case OutcomeSkipped:
		logger.Debug("query skipped", fields...)
	case OutcomeMatch:
		logger.Info("results match", append(fields, zap.Int64("rows", v.RowsCompared))...)
	case OutcomeRowCountMismatch:
		logger.Warn("row counts do not match",
			append(fields, zap.Int64("left_rows", v.LeftRows), zap.Int64("right_rows", v.RightRows))...)
	case OutcomeColumnCountMismatch:
		logger.Warn("column counts do not match",
			append(fields, zap.Int("left_columns", v.LeftColumns), zap.Int("right_columns", v.RightColumns))...)
	case OutcomeContentMismatch:
		logger.Warn("results do not match", append(fields,
			zap.Int64("rows", v.RowsCompared),
			zap.Int("mismatches", v.MismatchCount),
			zap.Bool("truncated", v.Truncated),
		)...)
	case OutcomeError:
		logger.Error("comparison failed", append(fields, zap.String("error", v.Error))...)
	}
}
