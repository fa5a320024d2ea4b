package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/roach88/qvalidate/internal/value"
)

// resultTable is the table read from a SQLite file holding several tables.
const resultTable = "result"

// sqliteTable reads the result table of a SQLite database file.
//
// A file with exactly one user table is read from that table; otherwise a
// table named "result" must exist. Column kinds come from the declared
// column types; undeclared or unknown types read as text.
type sqliteTable struct {
	db     *sql.DB
	table  string
	schema value.Schema
}

func openSQLite(path string) (*sqliteTable, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	table, err := resolveTable(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	schema, err := tableSchema(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteTable{db: db, table: table, schema: schema}, nil
}

func resolveTable(db *sql.DB) (string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	switch {
	case len(names) == 1:
		return names[0], nil
	case len(names) == 0:
		return "", fmt.Errorf("database has no tables")
	}
	for _, name := range names {
		if name == resultTable {
			return name, nil
		}
	}
	return "", fmt.Errorf("database has %d tables and none is named %q", len(names), resultTable)
}

func tableSchema(db *sql.DB, table string) (value.Schema, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types of %q: %w", table, err)
	}

	schema := make(value.Schema, len(types))
	for i, ct := range types {
		kind, ok := value.ParseKind(ct.DatabaseTypeName())
		if !ok {
			kind = value.KindText
		}
		schema[i] = value.Column{Name: ct.Name(), Kind: kind}
	}
	return schema, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (t *sqliteTable) Schema() value.Schema { return t.schema }

func (t *sqliteTable) NumRows(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(t.table))
	if err := t.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %q: %w", t.table, err)
	}
	return n, nil
}

// Rows scans the table in rowid order, which is insertion order for
// ordinary tables.
func (t *sqliteTable) Rows(ctx context.Context) (Cursor, error) {
	query := fmt.Sprintf("SELECT * FROM %s", quoteIdent(t.table))
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", t.table, err)
	}
	return &sqliteCursor{rows: rows, schema: t.schema}, nil
}

func (t *sqliteTable) Close() error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

type sqliteCursor struct {
	rows   *sql.Rows
	schema value.Schema
	row    value.Row
	err    error
}

func (c *sqliteCursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	raw := make([]any, len(c.schema))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		return false
	}

	row := make(value.Row, len(raw))
	for i, v := range raw {
		converted, err := sqliteValue(v, c.schema[i].Kind)
		if err != nil {
			c.err = fmt.Errorf("column %q: %w", c.schema[i].Name, err)
			return false
		}
		row[i] = converted
	}
	c.row = row
	return true
}

// sqliteValue converts a driver value to the column's declared kind.
// SQLite is dynamically typed, so a stored value may not match its column
// declaration; text is parsed and numbers are widened where that is lossless.
func sqliteValue(v any, kind value.Kind) (value.Value, error) {
	if v == nil {
		return value.Null{}, nil
	}

	switch x := v.(type) {
	case []byte:
		v = string(x)
	case time.Time:
		v = x.UTC().Format(time.RFC3339Nano)
	}

	switch kind {
	case value.KindBool:
		switch x := v.(type) {
		case bool:
			return value.Bool(x), nil
		case int64:
			return value.Bool(x != 0), nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, err
			}
			return value.Bool(b), nil
		}
	case value.KindInt:
		switch x := v.(type) {
		case int64:
			return value.Int(x), nil
		case bool:
			if x {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		case string:
			n, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, err
			}
			return value.Int(n), nil
		}
	case value.KindDecimal:
		switch x := v.(type) {
		case int64:
			return value.NewDecimal(decimal.NewFromInt(x)), nil
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("decimal column holds %v", x)
			}
			return value.NewDecimal(decimal.NewFromFloat(x)), nil
		case string:
			d, err := decimal.NewFromString(x)
			if err != nil {
				return nil, err
			}
			return value.NewDecimal(d), nil
		}
	case value.KindFloat:
		switch x := v.(type) {
		case float64:
			return value.Float(x), nil
		case int64:
			return value.Float(float64(x)), nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, err
			}
			return value.Float(f), nil
		}
	default:
		switch x := v.(type) {
		case string:
			return value.Text(x), nil
		case int64:
			return value.Text(strconv.FormatInt(x, 10)), nil
		case float64:
			return value.Text(strconv.FormatFloat(x, 'g', -1, 64)), nil
		case bool:
			return value.Text(strconv.FormatBool(x)), nil
		}
	}
	return nil, fmt.Errorf("cannot read %T as %s", v, kind)
}

func (c *sqliteCursor) Row() value.Row { return c.row }
func (c *sqliteCursor) Err() error     { return c.err }

func (c *sqliteCursor) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}
