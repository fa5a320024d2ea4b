// Package testutil provides fixture writers and deterministic helpers shared
// by package tests.
package testutil

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scritchley/orc"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/require"
)

// WriteCSV writes a CSV file with a typed header ("name:type" cells) and the
// given records, creating parent directories as needed.
func WriteCSV(t testing.TB, path string, header []string, records [][]string) {
	t.Helper()
	mkdirParent(t, path)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(records))
	w.Flush()
	require.NoError(t, w.Error())
}

// WriteParquet writes rows to a parquet file using the struct tags of T.
func WriteParquet[T any](t testing.TB, path string, rows []T) {
	t.Helper()
	mkdirParent(t, path)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := parquet.NewGenericWriter[T](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// WriteORC writes rows to an ORC file. Schema is an ORC struct type such as
// "struct<id:bigint,name:string>"; a nil value writes a NULL.
func WriteORC(t testing.TB, path, schema string, rows [][]any) {
	t.Helper()
	mkdirParent(t, path)

	td, err := orc.ParseSchema(schema)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := orc.NewWriter(f, orc.SetSchema(td))
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, w.Write(row...))
	}
	require.NoError(t, w.Close())
}

// WriteSQLite creates table in a new SQLite database at path and inserts
// rows. Columns are SQL column definitions such as "id INTEGER".
func WriteSQLite(t testing.TB, path, table string, columns []string, rows [][]any) {
	t.Helper()
	mkdirParent(t, path)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(columns, ", ")))
	require.NoError(t, err)

	if len(rows) == 0 {
		return
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := db.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders))
	require.NoError(t, err)
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.Exec(row...)
		require.NoError(t, err)
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	mkdirParent(t, path)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mkdirParent(t testing.TB, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
}
