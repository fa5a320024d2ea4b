package dataset

import (
	"context"

	"github.com/roach88/qvalidate/internal/value"
)

// Cursor is a single-pass, forward-only sequence of rows.
//
// The usage pattern follows database/sql.Rows:
//
//	for cur.Next() {
//	    row := cur.Row()
//	}
//	if err := cur.Err(); err != nil { ... }
//
// Close must always be called and is safe to call more than once.
type Cursor interface {
	// Next advances to the next row. It returns false at the end of the
	// data or on error; Err distinguishes the two.
	Next() bool

	// Row returns the current row. Cursors never reuse a returned row, so
	// callers may retain it.
	Row() value.Row

	// Err returns the first error encountered while advancing.
	Err() error

	// Close releases the resources held by the cursor.
	Close() error
}

// sliceCursor iterates over materialized rows.
type sliceCursor struct {
	ctx  context.Context
	rows []value.Row
	pos  int
	err  error
}

func newSliceCursor(ctx context.Context, rows []value.Row) *sliceCursor {
	return &sliceCursor{ctx: ctx, rows: rows, pos: -1}
}

func (c *sliceCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Row() value.Row {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

func (c *sliceCursor) Err() error   { return c.err }
func (c *sliceCursor) Close() error { c.rows = nil; return nil }

// projectCursor drops excluded columns from every row of an inner cursor.
type projectCursor struct {
	inner Cursor
	idx   []int
	row   value.Row
}

func (c *projectCursor) Next() bool {
	if !c.inner.Next() {
		c.row = nil
		return false
	}
	c.row = c.inner.Row().Project(c.idx)
	return true
}

func (c *projectCursor) Row() value.Row { return c.row }
func (c *projectCursor) Err() error     { return c.inner.Err() }
func (c *projectCursor) Close() error   { return c.inner.Close() }

// concatCursor drains a sequence of lazily opened cursors one after another.
type concatCursor struct {
	ctx   context.Context
	open  []func(context.Context) (Cursor, error)
	cur   Cursor
	err   error
	state int
}

func (c *concatCursor) Next() bool {
	for c.err == nil {
		if c.cur == nil {
			if c.state >= len(c.open) {
				return false
			}
			cur, err := c.open[c.state](c.ctx)
			c.state++
			if err != nil {
				c.err = err
				return false
			}
			c.cur = cur
		}
		if c.cur.Next() {
			return true
		}
		if err := c.cur.Err(); err != nil {
			c.err = err
		}
		if err := c.cur.Close(); err != nil && c.err == nil {
			c.err = err
		}
		c.cur = nil
	}
	return false
}

func (c *concatCursor) Row() value.Row {
	if c.cur == nil {
		return nil
	}
	return c.cur.Row()
}

func (c *concatCursor) Err() error { return c.err }

func (c *concatCursor) Close() error {
	c.state = len(c.open)
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}

// Drain reads every remaining row of cur into memory. It does not close cur.
func Drain(cur Cursor) ([]value.Row, error) {
	var rows []value.Row
	for cur.Next() {
		rows = append(rows, cur.Row())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
