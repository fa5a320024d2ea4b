package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/qvalidate/internal/value"
)

// Format names the storage encoding of a dataset.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatORC     Format = "orc"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatSQLite  Format = "sqlite"
)

// Formats lists the supported formats.
var Formats = []Format{FormatParquet, FormatORC, FormatJSON, FormatCSV, FormatSQLite}

// ErrUnsupportedFormat is returned for format names outside Formats.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// ErrNoDataFiles is returned when a dataset directory holds no file of the
// requested format.
var ErrNoDataFiles = errors.New("no data files found")

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Formats, f) {
		return f, nil
	}
	return "", fmt.Errorf("%w %q: must be one of %v", ErrUnsupportedFormat, name, Formats)
}

// extensions returns the file suffixes that identify data files.
func (f Format) extensions() []string {
	switch f {
	case FormatParquet:
		return []string{".parquet"}
	case FormatORC:
		return []string{".orc"}
	case FormatJSON:
		return []string{".json", ".jsonl"}
	case FormatCSV:
		return []string{".csv"}
	case FormatSQLite:
		return []string{".db", ".sqlite", ".sqlite3"}
	default:
		return nil
	}
}

// table is one physical data file opened for reading.
type table interface {
	Schema() value.Schema
	NumRows(ctx context.Context) (int64, error)
	Rows(ctx context.Context) (Cursor, error)
	Close() error
}

// readOptions carries format specific settings from the Loader to the
// tables it opens.
type readOptions struct {
	// csvNull is the CSV field text that reads as NULL. When empty, every
	// empty field is NULL.
	csvNull string
}

func openTable(format Format, path string, ro readOptions) (table, error) {
	switch format {
	case FormatParquet:
		return openParquet(path)
	case FormatORC:
		return openORC(path)
	case FormatJSON:
		return openJSON(path)
	case FormatCSV:
		return openCSV(path, ro.csvNull)
	case FormatSQLite:
		return openSQLite(path)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

// dataFiles resolves a dataset path to the files it is made of. A file path
// is returned as is. A directory yields every file with one of the format's
// extensions, in lexical order, skipping hidden and underscore-prefixed
// entries such as _SUCCESS markers and .crc checksums.
func dataFiles(path string, format Format) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dataset path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if slices.Contains(format.extensions(), ext) {
			files = append(files, filepath.Join(path, name))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoDataFiles, format, path)
	}
	slices.Sort(files)
	return files, nil
}

// multiTable presents several files of one format as a single table.
type multiTable struct {
	tables []table
	schema value.Schema
}

func openTables(format Format, files []string, ro readOptions) (*multiTable, error) {
	mt := &multiTable{}
	for _, path := range files {
		t, err := openTable(format, path, ro)
		if err != nil {
			_ = mt.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		mt.tables = append(mt.tables, t)
		if len(mt.tables) == 1 {
			mt.schema = t.Schema()
			continue
		}
		if !mt.schema.Equal(t.Schema()) {
			_ = mt.Close()
			return nil, fmt.Errorf("schema of %s differs from %s", path, files[0])
		}
	}
	return mt, nil
}

func (mt *multiTable) Schema() value.Schema { return mt.schema }

func (mt *multiTable) NumRows(ctx context.Context) (int64, error) {
	var total int64
	for _, t := range mt.tables {
		n, err := t.NumRows(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (mt *multiTable) Rows(ctx context.Context) (Cursor, error) {
	open := make([]func(context.Context) (Cursor, error), len(mt.tables))
	for i, t := range mt.tables {
		open[i] = t.Rows
	}
	return &concatCursor{ctx: ctx, open: open}, nil
}

func (mt *multiTable) Close() error {
	var errs []error
	for _, t := range mt.tables {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	mt.tables = nil
	return errors.Join(errs...)
}
