package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/scritchley/orc"
	"github.com/scritchley/orc/proto"
	"github.com/shopspring/decimal"

	"github.com/roach88/qvalidate/internal/value"
)

// orcTable reads a flat ORC file such as those Spark and Hive write.
//
// Integer types widen to Int, float and double to Float, and decimal keeps
// its scale. Dates and timestamps read as text in UTC so that they compare
// with the text a CSV or SQLite side holds for the same column.
type orcTable struct {
	file    *os.File
	reader  *orc.Reader
	columns []string
	schema  value.Schema
}

// openORC opens the file itself: the Reader from orc.Open never closes the
// file it reads.
func openORC(path string) (*orcTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r, err := orc.NewReader(io.NewSectionReader(file, 0, stat.Size()))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open orc file: %w", err)
	}

	t := &orcTable{file: file, reader: r, columns: r.Schema().Columns()}
	for _, name := range t.columns {
		field, err := r.Schema().GetField(name)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		kind, err := orcKind(field.Type().GetKind())
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		t.schema = append(t.schema, value.Column{Name: name, Kind: kind})
	}
	return t, nil
}

func orcKind(k proto.Type_Kind) (value.Kind, error) {
	switch k {
	case proto.Type_BOOLEAN:
		return value.KindBool, nil
	case proto.Type_BYTE, proto.Type_SHORT, proto.Type_INT, proto.Type_LONG:
		return value.KindInt, nil
	case proto.Type_FLOAT, proto.Type_DOUBLE:
		return value.KindFloat, nil
	case proto.Type_DECIMAL:
		return value.KindDecimal, nil
	case proto.Type_STRING, proto.Type_VARCHAR, proto.Type_CHAR, proto.Type_BINARY,
		proto.Type_DATE, proto.Type_TIMESTAMP:
		return value.KindText, nil
	default:
		return 0, fmt.Errorf("nested column type %s is not supported", k)
	}
}

func (t *orcTable) Schema() value.Schema { return t.schema }

// NumRows comes from the file footer.
func (t *orcTable) NumRows(context.Context) (int64, error) {
	return int64(t.reader.NumRows()), nil
}

func (t *orcTable) Rows(ctx context.Context) (Cursor, error) {
	return &orcCursor{
		ctx:    ctx,
		cur:    t.reader.Select(t.columns...),
		schema: t.schema,
	}, nil
}

// Close is safe to call multiple times.
func (t *orcTable) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.reader = nil
	return err
}

type orcCursor struct {
	ctx      context.Context
	cur      *orc.Cursor
	schema   value.Schema
	inStripe bool
	done     bool
	row      value.Row
	err      error
}

func (c *orcCursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	for {
		if !c.inStripe {
			if !c.cur.Stripes() {
				c.done = true
				c.err = c.cur.Err()
				return false
			}
			c.inStripe = true
		}
		if c.cur.Next() {
			break
		}
		if err := c.cur.Err(); err != nil {
			c.err = err
			return false
		}
		c.inStripe = false
	}

	raw := c.cur.Row()
	row := make(value.Row, len(raw))
	for i, v := range raw {
		converted, err := orcValue(v, c.schema[i].Kind)
		if err != nil {
			c.err = fmt.Errorf("column %q: %w", c.schema[i].Name, err)
			return false
		}
		row[i] = converted
	}
	c.row = row
	return true
}

func orcValue(v any, kind value.Kind) (value.Value, error) {
	if v == nil {
		return value.Null{}, nil
	}
	switch x := v.(type) {
	case bool:
		return value.Bool(x), nil
	case int8:
		return value.Int(x), nil
	case int64:
		return value.Int(x), nil
	case float32:
		return value.Float(x), nil
	case float64:
		return value.Float(x), nil
	case orc.Decimal:
		if x.Int == nil {
			return value.Null{}, nil
		}
		return value.NewDecimal(decimal.NewFromBigInt(x.Int, -int32(x.Scale))), nil
	case string:
		return value.Text(x), nil
	case []byte:
		return value.Text(string(x)), nil
	case orc.Date:
		return value.Text(x.Format(time.DateOnly)), nil
	case time.Time:
		return value.Text(x.UTC().Format(time.RFC3339Nano)), nil
	}
	return nil, fmt.Errorf("cannot read %T as %s", v, kind)
}

func (c *orcCursor) Row() value.Row { return c.row }
func (c *orcCursor) Err() error     { return c.err }

// Close is a no-op: the cursor shares the table's reader.
func (c *orcCursor) Close() error { return nil }
