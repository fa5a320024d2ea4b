// Package stream parses query stream files into the ordered list of query
// identifiers a validation run iterates over.
//
// A stream file is a sequence of blocks, each introduced by a marker line
//
//	-- start query 1 in stream 0 using template query96.tpl
//
// followed by one or more SQL statements separated by semicolons. The
// template name without its extension identifies the query. A block with
// several statements yields one identifier per statement, suffixed
// _part1, _part2 and so on.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
)

// Query is one named query of a stream.
type Query struct {
	// ID is the query identifier, also the name of its output directory.
	ID string `json:"id" yaml:"id"`

	// Position is the 1-based position of the query in the stream.
	Position int `json:"position" yaml:"position"`

	// SQL is the statement text without its trailing semicolon.
	SQL string `json:"-" yaml:"-"`
}

// ErrUnknownQuery is returned by Subset for identifiers outside the stream.
var ErrUnknownQuery = errors.New("unknown query")

// ErrDuplicateQuery is returned when a stream names the same query twice.
var ErrDuplicateQuery = errors.New("duplicate query")

var startMarker = regexp.MustCompile(`^--\s*start\s+query\s+\d+\s+in\s+stream\s+\d+\s+using\s+template\s+(\S+?)(?:\.tpl)?\s*$`)

// ParseFile parses the stream file at path.
func ParseFile(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open query stream: %w", err)
	}
	defer f.Close()

	queries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return queries, nil
}

// Parse reads a query stream. Text before the first start marker and
// other comment lines are ignored.
func Parse(r io.Reader) ([]Query, error) {
	type block struct {
		name string
		line int
		body strings.Builder
	}

	var blocks []*block
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if m := startMarker.FindStringSubmatch(trimmed); m != nil {
			blocks = append(blocks, &block{name: m[1], line: line})
			continue
		}
		if len(blocks) == 0 || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur := blocks[len(blocks)-1]
		cur.body.WriteString(text)
		cur.body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read query stream: %w", err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("query stream has no start markers")
	}

	var queries []Query
	seen := make(map[string]int)
	for _, b := range blocks {
		stmts := splitStatements(b.body.String())
		if len(stmts) == 0 {
			return nil, fmt.Errorf("line %d: query %s has no statements", b.line, b.name)
		}
		for i, stmt := range stmts {
			id := b.name
			if len(stmts) > 1 {
				id = fmt.Sprintf("%s_part%d", b.name, i+1)
			}
			if prev, ok := seen[id]; ok {
				return nil, fmt.Errorf("%w %s at line %d, first defined at line %d", ErrDuplicateQuery, id, b.line, prev)
			}
			seen[id] = b.line
			queries = append(queries, Query{ID: id, Position: len(queries) + 1, SQL: stmt})
		}
	}
	return queries, nil
}

// splitStatements splits on semicolons outside single-quoted literals and
// drops empty statements. A "--" outside a literal starts a comment that
// runs to the end of its line; comments are removed so that quotes and
// semicolons inside them do not split statements.
func splitStatements(body string) []string {
	var (
		stmts     []string
		cur       strings.Builder
		inQuote   bool
		inComment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				cur.WriteByte(c)
			}
		case c == '\'':
			inQuote = !inQuote
			cur.WriteByte(c)
		case inQuote:
			cur.WriteByte(c)
		case c == '-' && i+1 < len(body) && body[i+1] == '-':
			inComment = true
			i++
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// IDs returns the query identifiers in stream order.
func IDs(queries []Query) []string {
	ids := make([]string, len(queries))
	for i, q := range queries {
		ids[i] = q.ID
	}
	return ids
}

// Subset restricts queries to the given identifiers, keeping stream order.
// Every identifier must exist in the stream; unknown ones are reported
// together. Positions are kept from the full stream.
func Subset(queries []Query, ids []string) ([]Query, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			want[id] = true
		}
	}

	var out []Query
	for _, q := range queries {
		if want[q.ID] {
			out = append(out, q)
			delete(want, q.ID)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for id := range want {
			unknown = append(unknown, id)
		}
		slices.Sort(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, strings.Join(unknown, ", "))
	}
	return out, nil
}
