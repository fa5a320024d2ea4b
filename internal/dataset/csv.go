package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/qvalidate/internal/value"
)

// csvTable reads a CSV file whose header declares column types.
//
// Header cells take the form "name:type" (for example "l_quantity:decimal"
// or "o_orderkey:int"); a cell without a type is a text column.
//
// Without a null marker an empty field is NULL for every column type. A
// quoted empty field ("") is indistinguishable from an unquoted one once
// read, so an empty string and NULL compare equal. Spark writes empty
// strings as "" and NULL as an empty field by default; writing with a
// nullValue option and passing the same marker here tells them apart. With
// a marker, only fields equal to it are NULL in text columns, and empty
// fields are still NULL in other columns.
type csvTable struct {
	path      string
	schema    value.Schema
	nullValue string
}

func openCSV(path, nullValue string) (*csvTable, error) {
	schema, err := readTypedHeader(path)
	if err != nil {
		return nil, err
	}
	return &csvTable{path: path, schema: schema, nullValue: nullValue}, nil
}

// readTypedHeader parses the first CSV record of the file at path as a
// typed header.
func readTypedHeader(path string) (value.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv file has no header row")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	return parseCSVHeader(header)
}

func parseCSVHeader(header []string) (value.Schema, error) {
	schema := make(value.Schema, len(header))
	for i, cell := range header {
		name, typ, typed := strings.Cut(cell, ":")
		col := value.Column{Name: strings.TrimSpace(name), Kind: value.KindText}
		if typed {
			kind, ok := value.ParseKind(typ)
			if !ok {
				return nil, fmt.Errorf("column %q: unknown type %q", col.Name, typ)
			}
			col.Kind = kind
		}
		schema[i] = col
	}
	return schema, nil
}

func (t *csvTable) Schema() value.Schema { return t.schema }

// NumRows counts records with a full pass over the file.
func (t *csvTable) NumRows(ctx context.Context) (int64, error) {
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

func (t *csvTable) Rows(ctx context.Context) (Cursor, error) {
	return t.open(ctx, true)
}

func (t *csvTable) open(ctx context.Context, decode bool) (*csvCursor, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(t.schema)
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	return &csvCursor{ctx: ctx, file: f, reader: r, schema: t.schema, nullValue: t.nullValue, decode: decode}, nil
}

// Close is a no-op: csvTable opens the file per pass.
func (t *csvTable) Close() error { return nil }

type csvCursor struct {
	ctx       context.Context
	file      *os.File
	reader    *csv.Reader
	schema    value.Schema
	nullValue string
	decode    bool
	row       value.Row
	err       error
}

func (c *csvCursor) Next() bool {
	if c.err != nil || c.file == nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	record, err := c.reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = fmt.Errorf("failed to read csv record: %w", err)
		}
		return false
	}
	if !c.decode {
		return true
	}

	row := make(value.Row, len(record))
	for i, field := range record {
		v, err := parseCSVField(field, c.schema[i].Kind, c.nullValue)
		if err != nil {
			line, _ := c.reader.FieldPos(i)
			c.err = fmt.Errorf("line %d, column %q: %w", line, c.schema[i].Name, err)
			return false
		}
		row[i] = v
	}
	c.row = row
	return true
}

func parseCSVField(field string, kind value.Kind, nullValue string) (value.Value, error) {
	if field == nullValue || (field == "" && kind != value.KindText) {
		return value.Null{}, nil
	}
	switch kind {
	case value.KindBool:
		b, err := strconv.ParseBool(field)
		if err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case value.KindInt:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, err
		}
		return value.Int(n), nil
	case value.KindDecimal:
		d, err := decimal.NewFromString(field)
		if err != nil {
			return nil, err
		}
		return value.NewDecimal(d), nil
	case value.KindFloat:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		return value.Float(f), nil
	default:
		return value.Text(field), nil
	}
}

func (c *csvCursor) Row() value.Row { return c.row }
func (c *csvCursor) Err() error     { return c.err }

func (c *csvCursor) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
