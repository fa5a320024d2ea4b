package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/qvalidate/internal/value"
)

// spillBatch is the number of rows inserted per transaction.
const spillBatch = 1000

const spillSchema = `
CREATE TABLE rows (
	key     BLOB NOT NULL,
	payload TEXT NOT NULL
)`

// spill is a temporary SQLite database that sorts rows too large to hold
// in memory. Rows go in with their sort key and come back out ordered by
// it: SQLite compares BLOBs with memcmp, which is the order the key
// encoding is built for.
type spill struct {
	dir string
	db  *sql.DB
}

func openSpill(tempDir string) (*spill, error) {
	dir, err := os.MkdirTemp(tempDir, "qvalidate-spill-")
	if err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "spill.db"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open spill database: %w", err)
	}

	// One connection: the spill is written then read by a single goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &spill{dir: dir, db: db}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// init applies pragmas suited to a throwaway database and creates the table.
func (s *spill) init() error {
	stmts := []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA temp_store = FILE",
		spillSchema,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// Fill drains cur into the spill, keying each row with the columns at order.
// It does not close cur.
func (s *spill) Fill(ctx context.Context, cur Cursor, order []int) error {
	var (
		tx   *sql.Tx
		stmt *sql.Stmt
		n    int
	)
	rollback := func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}

	for cur.Next() {
		if tx == nil {
			var err error
			if tx, err = s.db.BeginTx(ctx, nil); err != nil {
				return fmt.Errorf("begin spill batch: %w", err)
			}
			if stmt, err = tx.PrepareContext(ctx, "INSERT INTO rows (key, payload) VALUES (?, ?)"); err != nil {
				rollback()
				return fmt.Errorf("prepare spill insert: %w", err)
			}
		}

		row := cur.Row()
		key, err := value.SortKey(row, order)
		if err != nil {
			rollback()
			return err
		}
		payload, err := value.MarshalRow(row)
		if err != nil {
			rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, key, string(payload)); err != nil {
			rollback()
			return fmt.Errorf("spill row: %w", err)
		}

		n++
		if n%spillBatch == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit spill batch: %w", err)
			}
			tx = nil
		}
	}
	if err := cur.Err(); err != nil {
		rollback()
		return err
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit spill batch: %w", err)
		}
	}
	return nil
}

// Rows returns the spilled rows in key order.
func (s *spill) Rows(ctx context.Context) (Cursor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM rows ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("read spill: %w", err)
	}
	return &spillCursor{rows: rows}, nil
}

// Close drops the database and removes its directory.
func (s *spill) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Join(err, os.RemoveAll(s.dir))
}

type spillCursor struct {
	rows *sql.Rows
	row  value.Row
	err  error
}

func (c *spillCursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	var payload string
	if err := c.rows.Scan(&payload); err != nil {
		c.err = fmt.Errorf("scan spilled row: %w", err)
		return false
	}
	row, err := value.UnmarshalRow([]byte(payload))
	if err != nil {
		c.err = err
		return false
	}
	c.row = row
	return true
}

func (c *spillCursor) Row() value.Row { return c.row }
func (c *spillCursor) Err() error     { return c.err }

func (c *spillCursor) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}
