package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"github.com/roach88/qvalidate/internal/value"
)

// jsonSchemaFile is the sidecar that types the JSON files of a directory.
// It holds a single CSV record of "name:type" cells, the header syntax of
// CSV datasets, and is skipped as a data file by its underscore prefix.
const jsonSchemaFile = "_schema.csv"

// jsonTable reads JSON lines files as Spark writes them: one object per
// record, keyed by column name, with null fields usually omitted.
//
// JSON numbers do not say whether they are decimals or doubles, so column
// kinds come from the _schema.csv sidecar next to the file and not from
// the data. Missing keys and JSON null read as NULL. Float columns accept
// the quoted "NaN", "Infinity" and "-Infinity" Spark writes for
// non-finite doubles.
type jsonTable struct {
	path   string
	schema value.Schema
}

func openJSON(path string) (*jsonTable, error) {
	sidecar := filepath.Join(filepath.Dir(path), jsonSchemaFile)
	schema, err := readTypedHeader(sidecar)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("json datasets need a %s schema file next to the data: %w", jsonSchemaFile, err)
		}
		return nil, fmt.Errorf("%s: %w", sidecar, err)
	}
	return &jsonTable{path: path, schema: schema}, nil
}

func (t *jsonTable) Schema() value.Schema { return t.schema }

// NumRows counts records with a full pass over the file.
func (t *jsonTable) NumRows(ctx context.Context) (int64, error) {
	cur, err := t.open(ctx, false)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var n int64
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}

func (t *jsonTable) Rows(ctx context.Context) (Cursor, error) {
	return t.open(ctx, true)
}

func (t *jsonTable) open(ctx context.Context, decode bool) (*jsonCursor, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return &jsonCursor{ctx: ctx, file: f, dec: json.NewDecoder(f), schema: t.schema, decode: decode}, nil
}

// Close is a no-op: jsonTable opens the file per pass.
func (t *jsonTable) Close() error { return nil }

type jsonCursor struct {
	ctx    context.Context
	file   *os.File
	dec    *json.Decoder
	schema value.Schema
	decode bool
	n      int
	row    value.Row
	err    error
}

func (c *jsonCursor) Next() bool {
	if c.err != nil || c.file == nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	var record map[string]json.RawMessage
	if err := c.dec.Decode(&record); err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = fmt.Errorf("record %d: %w", c.n+1, err)
		}
		return false
	}
	c.n++
	if !c.decode {
		return true
	}

	row := make(value.Row, len(c.schema))
	for i, col := range c.schema {
		v, err := parseJSONField(record[col.Name], col.Kind)
		if err != nil {
			c.err = fmt.Errorf("record %d, column %q: %w", c.n, col.Name, err)
			return false
		}
		row[i] = v
	}
	c.row = row
	return true
}

func parseJSONField(raw json.RawMessage, kind value.Kind) (value.Value, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return value.Null{}, nil
	}

	if kind == value.KindText {
		if text[0] != '"' {
			// Numbers and booleans keep their JSON spelling.
			return value.Text(text), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return value.Text(s), nil
	}

	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		text = s
	}

	switch kind {
	case value.KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case value.KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		return value.Int(n), nil
	case value.KindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, err
		}
		return value.NewDecimal(d), nil
	case value.KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return value.Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported column kind %s", kind)
	}
}

func (c *jsonCursor) Row() value.Row { return c.row }
func (c *jsonCursor) Err() error     { return c.err }

func (c *jsonCursor) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
