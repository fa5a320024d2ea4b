package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/segmentio/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/roach88/qvalidate/internal/value"
)

// decodeFunc converts one parquet leaf value to a scalar value.
type decodeFunc func(parquet.Value) (value.Value, error)

// parquetTable reads a flat parquet file.
//
// It keeps both the OS file handle and the parquet file handle so that
// Close releases everything.
type parquetTable struct {
	file     *os.File
	pqFile   *parquet.File
	schema   value.Schema
	decoders []decodeFunc
}

func openParquet(path string) (*parquetTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	t := &parquetTable{file: file, pqFile: pqFile}
	for _, field := range pqFile.Schema().Fields() {
		col, decode, err := parquetColumn(field)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		t.schema = append(t.schema, col)
		t.decoders = append(t.decoders, decode)
	}
	return t, nil
}

// parquetColumn maps a top-level parquet field to a column and its decoder.
// Groups and repeated fields are rejected: only scalar columns compare.
func parquetColumn(field parquet.Field) (value.Column, decodeFunc, error) {
	if len(field.Fields()) > 0 || field.Repeated() {
		return value.Column{}, nil, fmt.Errorf("column %q: nested column types are not supported", field.Name())
	}

	typ := field.Type()
	col := value.Column{Name: field.Name()}

	if lt := typ.LogicalType(); lt != nil && lt.Decimal != nil {
		col.Kind = value.KindDecimal
		return col, decimalDecoder(typ.Kind(), lt.Decimal.Scale), nil
	}

	switch typ.Kind() {
	case parquet.Boolean:
		col.Kind = value.KindBool
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Bool(v.Boolean()), nil
		}, nil
	case parquet.Int32:
		col.Kind = value.KindInt
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Int(v.Int32()), nil
		}, nil
	case parquet.Int64:
		col.Kind = value.KindInt
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Int(v.Int64()), nil
		}, nil
	case parquet.Float:
		col.Kind = value.KindFloat
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Float(v.Float()), nil
		}, nil
	case parquet.Double:
		col.Kind = value.KindFloat
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Float(v.Double()), nil
		}, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		col.Kind = value.KindText
		return col, func(v parquet.Value) (value.Value, error) {
			return value.Text(string(v.ByteArray())), nil
		}, nil
	default:
		return value.Column{}, nil, fmt.Errorf("column %q: unsupported physical type %s", field.Name(), typ.Kind())
	}
}

// decimalDecoder reads DECIMAL values stored as INT32, INT64 or big-endian
// two's complement byte arrays.
func decimalDecoder(kind parquet.Kind, scale int32) decodeFunc {
	return func(v parquet.Value) (value.Value, error) {
		switch kind {
		case parquet.Int32:
			return value.NewDecimalFromUnscaled(int64(v.Int32()), scale), nil
		case parquet.Int64:
			return value.NewDecimalFromUnscaled(v.Int64(), scale), nil
		case parquet.ByteArray, parquet.FixedLenByteArray:
			unscaled := twosComplement(v.ByteArray())
			return value.NewDecimal(decimal.NewFromBigInt(unscaled, -scale)), nil
		default:
			return nil, fmt.Errorf("decimal stored as unsupported physical type %s", kind)
		}
	}
}

func twosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
	}
	return n
}

func (t *parquetTable) Schema() value.Schema { return t.schema }

// NumRows comes from the file footer; no data pages are read.
func (t *parquetTable) NumRows(context.Context) (int64, error) {
	return t.pqFile.NumRows(), nil
}

func (t *parquetTable) Rows(ctx context.Context) (Cursor, error) {
	return &parquetCursor{
		ctx:      ctx,
		reader:   parquet.NewReader(t.pqFile),
		buf:      make([]parquet.Row, 1),
		decoders: t.decoders,
	}, nil
}

// Close is safe to call multiple times.
func (t *parquetTable) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

type parquetCursor struct {
	ctx      context.Context
	reader   *parquet.Reader
	buf      []parquet.Row
	decoders []decodeFunc
	row      value.Row
	err      error
	done     bool
}

func (c *parquetCursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	n, err := c.reader.ReadRows(c.buf)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = fmt.Errorf("failed to read row: %w", err)
			return false
		}
		c.done = true
	}
	if n == 0 {
		c.done = true
		return false
	}

	row, err := c.decode(c.buf[0])
	if err != nil {
		c.err = err
		return false
	}
	c.row = row
	return true
}

func (c *parquetCursor) decode(pr parquet.Row) (value.Row, error) {
	row := make(value.Row, len(c.decoders))
	for i := range row {
		row[i] = value.Null{}
	}
	for _, pv := range pr {
		col := pv.Column()
		if col < 0 || col >= len(c.decoders) {
			return nil, fmt.Errorf("parquet value for unknown column %d", col)
		}
		if pv.IsNull() {
			continue
		}
		v, err := c.decoders[col](pv)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", col, err)
		}
		row[col] = v
	}
	return row, nil
}

func (c *parquetCursor) Row() value.Row { return c.row }
func (c *parquetCursor) Err() error     { return c.err }

func (c *parquetCursor) Close() error {
	if c.reader == nil {
		return nil
	}
	err := c.reader.Close()
	c.reader = nil
	return err
}
