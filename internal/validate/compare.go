package validate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/qvalidate/internal/dataset"
	"github.com/roach88/qvalidate/internal/value"
)

// DefaultMaxMismatches is the default mismatch cap.
const DefaultMaxMismatches = 10

// DefaultSkipQueries lists statements that produce no rows: the view
// management parts of query15.
var DefaultSkipQueries = []string{"query15_part1", "query15_part3"}

// DefaultExcludeColumns lists columns whose values depend on the engine.
// query18 may break o_orderkey ties differently.
func DefaultExcludeColumns() map[string][]string {
	return map[string][]string{"query18": {"o_orderkey"}}
}

// Options configures a Comparator.
type Options struct {
	// Epsilon is the relative tolerance for float and decimal values.
	Epsilon float64

	// MaxMismatches caps the mismatches recorded per query. Comparison of a
	// query stops once the cap is reached. Zero or less disables the cap.
	MaxMismatches int

	IgnoreOrdering bool
	Streaming      bool

	// SkipQueries are matched without reading any data.
	SkipQueries []string

	// ExcludeColumns maps a query id to columns dropped from both sides.
	ExcludeColumns map[string][]string
}

// DefaultOptions returns the default comparison options.
func DefaultOptions() Options {
	return Options{
		Epsilon:        value.DefaultEpsilon,
		MaxMismatches:  DefaultMaxMismatches,
		SkipQueries:    DefaultSkipQueries,
		ExcludeColumns: DefaultExcludeColumns(),
	}
}

// Comparator compares the two outputs of a single query.
//
// Comparators hold no per-query state and may be used concurrently.
type Comparator struct {
	loader *dataset.Loader
	opts   Options
	skip   map[string]bool
	logger *zap.Logger
}

// NewComparator creates a Comparator. A nil logger discards log output.
func NewComparator(loader *dataset.Loader, opts Options, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]bool, len(opts.SkipQueries))
	for _, id := range opts.SkipQueries {
		skip[id] = true
	}
	return &Comparator{loader: loader, opts: opts, skip: skip, logger: logger}
}

// Options returns the options the comparator was built with.
func (c *Comparator) Options() Options { return c.opts }

// CompareQuery compares the outputs of query id at left and right.
//
// A skipped query matches without touching either path. Otherwise column
// arity and row counts are checked first; only when both agree are rows
// streamed pairwise. The returned error is an *Error with ErrCodeIO when a
// dataset cannot be read; mismatches are reported through the verdict.
func (c *Comparator) CompareQuery(ctx context.Context, left, right dataset.Source, id string) (Verdict, error) {
	v := Verdict{Query: id}
	if c.skip[id] {
		v.Matched = true
		v.Outcome = OutcomeSkipped
		return v, nil
	}

	opts := dataset.Options{
		Exclude:        c.opts.ExcludeColumns[id],
		IgnoreOrdering: c.opts.IgnoreOrdering,
		Streaming:      c.opts.Streaming,
	}

	lds, err := c.loader.Load(ctx, left, opts)
	if err != nil {
		return v, NewIOError(id, "load "+left.Path, err)
	}
	defer lds.Close()

	rds, err := c.loader.Load(ctx, right, opts)
	if err != nil {
		return v, NewIOError(id, "load "+right.Path, err)
	}
	defer rds.Close()

	if v.LeftRows, err = lds.NumRows(ctx); err != nil {
		return v, NewIOError(id, "count rows of "+left.Path, err)
	}
	if v.RightRows, err = rds.NumRows(ctx); err != nil {
		return v, NewIOError(id, "count rows of "+right.Path, err)
	}

	if ln, rn := len(lds.Schema()), len(rds.Schema()); ln != rn {
		v.Outcome = OutcomeColumnCountMismatch
		v.LeftColumns, v.RightColumns = ln, rn
		return v, nil
	}
	if v.LeftRows != v.RightRows {
		v.Outcome = OutcomeRowCountMismatch
		return v, nil
	}

	lcur, err := lds.Rows(ctx)
	if err != nil {
		return v, NewIOError(id, "read "+left.Path, err)
	}
	defer lcur.Close()

	rcur, err := rds.Rows(ctx)
	if err != nil {
		return v, NewIOError(id, "read "+right.Path, err)
	}
	defer rcur.Close()

	if err := c.compareRows(&v, newPairedCursor(lcur, rcur)); err != nil {
		return v, NewIOError(id, "compare rows", err)
	}

	if v.MismatchCount > 0 {
		v.Outcome = OutcomeContentMismatch
		return v, nil
	}
	v.Matched = true
	v.Outcome = OutcomeMatch
	return v, nil
}

func (c *Comparator) compareRows(v *Verdict, pc *pairedCursor) error {
	for pc.Next() {
		l, r := pc.Rows()
		v.RowsCompared++
		if value.RowEqual(l, r, c.opts.Epsilon) {
			continue
		}

		row := v.RowsCompared - 1
		v.Mismatches = append(v.Mismatches, newMismatch(row, l, r))
		v.MismatchCount++
		c.logger.Debug("row mismatch",
			zap.String("query", v.Query),
			zap.Int64("row", row),
			zap.Stringer("left", l),
			zap.Stringer("right", r),
		)

		if c.opts.MaxMismatches > 0 && v.MismatchCount >= c.opts.MaxMismatches {
			v.Truncated = true
			return nil
		}
	}
	return pc.Err()
}

// errUnevenStreams is returned when one side runs out of rows before the
// other even though their counts agreed.
var errUnevenStreams = errors.New("row streams ended unevenly")

// pairedCursor advances two cursors in lockstep.
type pairedCursor struct {
	left, right dataset.Cursor
	pos         int64
	err         error
}

func newPairedCursor(left, right dataset.Cursor) *pairedCursor {
	return &pairedCursor{left: left, right: right}
}

// Next advances both sides. It returns false when both are exhausted or
// on the first error from either side.
func (p *pairedCursor) Next() bool {
	if p.err != nil {
		return false
	}
	ln := p.left.Next()
	rn := p.right.Next()
	if err := errors.Join(p.left.Err(), p.right.Err()); err != nil {
		p.err = err
		return false
	}
	if ln != rn {
		p.err = fmt.Errorf("%w after %d rows", errUnevenStreams, p.pos)
		return false
	}
	if ln {
		p.pos++
	}
	return ln
}

// Rows returns the current pair.
func (p *pairedCursor) Rows() (value.Row, value.Row) {
	return p.left.Row(), p.right.Row()
}

func (p *pairedCursor) Err() error { return p.err }
