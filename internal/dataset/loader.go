package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/qvalidate/internal/value"
)

// Source locates one side of a comparison: a file or directory and the
// format its data files are stored in.
type Source struct {
	Path   string
	Format Format
}

// Join returns the source for a child directory, such as the output
// directory of a single query under a suite root.
func (s Source) Join(name string) Source {
	return Source{Path: filepath.Join(s.Path, name), Format: s.Format}
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s)", s.Path, s.Format)
}

// Options controls how a dataset is presented to the comparator.
type Options struct {
	// Exclude names columns dropped from the schema and every row. Names
	// that are not in the schema are ignored.
	Exclude []string

	// IgnoreOrdering sorts rows by their sort key so that two datasets
	// holding the same multiset of rows yield them in the same order.
	IgnoreOrdering bool

	// Streaming reads rows lazily instead of materializing them. Combined
	// with IgnoreOrdering the rows are sorted through a temporary SQLite
	// database instead of in memory.
	Streaming bool
}

// Loader opens datasets.
type Loader struct {
	logger  *zap.Logger
	tempDir string
	read    readOptions
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTempDir sets the directory that holds spill databases. The default
// is os.TempDir.
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) { l.tempDir = dir }
}

// WithCSVNullValue sets the CSV field text that reads as NULL, such as the
// nullValue a Spark job wrote with. Empty string fields then read as empty
// text instead of NULL.
func WithCSVNullValue(marker string) LoaderOption {
	return func(l *Loader) { l.read.csvNull = marker }
}

// NewLoader returns a Loader that logs through logger. A nil logger
// discards log output.
func NewLoader(logger *zap.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load opens the dataset at src. Only the schema is read eagerly; rows are
// read when Dataset.Rows is called. The caller must Close the dataset.
func (l *Loader) Load(ctx context.Context, src Source, opts Options) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := dataFiles(src.Path, src.Format)
	if err != nil {
		return nil, err
	}

	tbl, err := openTables(src.Format, files, l.read)
	if err != nil {
		return nil, err
	}

	keep := tbl.Schema().Without(opts.Exclude)
	d := &Dataset{
		source:  src,
		table:   tbl,
		schema:  tbl.Schema().Project(keep),
		keep:    keep,
		opts:    opts,
		logger:  l.logger,
		tempDir: l.tempDir,
	}

	l.logger.Debug("opened dataset",
		zap.String("path", src.Path),
		zap.String("format", string(src.Format)),
		zap.Int("files", len(files)),
		zap.Strings("columns", d.schema.Names()),
		zap.Int("excluded", len(tbl.Schema())-len(keep)),
	)
	return d, nil
}

// Dataset is an opened, possibly multi-file, result set with a fixed
// schema. Rows may be read once.
type Dataset struct {
	source  Source
	table   table
	schema  value.Schema
	keep    []int
	opts    Options
	logger  *zap.Logger
	tempDir string

	spill *spill
	read  bool
}

// Source returns where the dataset was loaded from.
func (d *Dataset) Source() Source { return d.source }

// Schema returns the schema after column exclusion.
func (d *Dataset) Schema() value.Schema { return d.schema }

// NumRows returns the number of rows without decoding them where the
// format allows it.
func (d *Dataset) NumRows(ctx context.Context) (int64, error) {
	return d.table.NumRows(ctx)
}

// ErrAlreadyRead is returned by Rows on its second call.
var ErrAlreadyRead = errors.New("dataset rows already read")

// Rows returns a cursor over the rows, after exclusion and, when requested,
// in sort key order. Materialized and streaming datasets yield identical
// sequences.
func (d *Dataset) Rows(ctx context.Context) (Cursor, error) {
	if d.read {
		return nil, ErrAlreadyRead
	}
	d.read = true

	raw, err := d.table.Rows(ctx)
	if err != nil {
		return nil, err
	}
	cur := Cursor(&projectCursor{inner: raw, idx: d.keep})

	switch {
	case d.opts.Streaming && !d.opts.IgnoreOrdering:
		return cur, nil
	case d.opts.Streaming:
		defer cur.Close()
		return d.spillSorted(ctx, cur)
	default:
		defer cur.Close()
		return d.materialize(ctx, cur)
	}
}

func (d *Dataset) materialize(ctx context.Context, cur Cursor) (Cursor, error) {
	rows, err := Drain(cur)
	if err != nil {
		return nil, err
	}
	if d.opts.IgnoreOrdering {
		if rows, err = SortRows(rows, d.schema); err != nil {
			return nil, err
		}
	}
	d.logger.Debug("materialized dataset",
		zap.String("path", d.source.Path),
		zap.Int("rows", len(rows)),
		zap.Bool("sorted", d.opts.IgnoreOrdering),
	)
	return newSliceCursor(ctx, rows), nil
}

func (d *Dataset) spillSorted(ctx context.Context, cur Cursor) (Cursor, error) {
	s, err := openSpill(d.tempDir)
	if err != nil {
		return nil, err
	}
	d.spill = s

	if err := s.Fill(ctx, cur, value.SortOrder(d.schema)); err != nil {
		return nil, err
	}
	d.logger.Debug("spilled dataset for sorting",
		zap.String("path", d.source.Path),
		zap.String("spill", s.dir),
	)
	return s.Rows(ctx)
}

// Close releases file handles and removes any spill database. It is safe
// to call more than once.
func (d *Dataset) Close() error {
	var errs []error
	if d.spill != nil {
		errs = append(errs, d.spill.Close())
		d.spill = nil
	}
	if d.table != nil {
		errs = append(errs, d.table.Close())
		d.table = nil
	}
	return errors.Join(errs...)
}

// SortRows orders rows by their sort key under schema. Keys are computed
// once per row. The input slice is reordered in place and returned.
func SortRows(rows []value.Row, schema value.Schema) ([]value.Row, error) {
	order := value.SortOrder(schema)
	type keyed struct {
		key []byte
		row value.Row
	}
	ks := make([]keyed, len(rows))
	for i, r := range rows {
		key, err := value.SortKey(r, order)
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{key: key, row: r}
	}
	slices.SortFunc(ks, func(a, b keyed) int { return bytes.Compare(a.key, b.key) })
	for i := range ks {
		rows[i] = ks[i].row
	}
	return rows, nil
}
