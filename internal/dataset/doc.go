// Package dataset loads query result sets for comparison.
//
// A dataset is a file, or a directory of files, in one of the supported
// formats (parquet, ORC, JSON lines, typed-header CSV, SQLite). JSON lines
// carry no types of their own; their kinds come from a _schema.csv file
// holding a typed CSV header next to the data. CSV cannot tell an empty
// string from NULL unless a null marker is configured with
// WithCSVNullValue. Loading reads only the
// schema; rows come from a single-pass Cursor after column exclusion and,
// when requested, in a canonical order given by value.SortKey.
//
// Two modes yield the same sequence. Materialized datasets read every row
// into memory and sort there. Streaming datasets read rows lazily, and
// when ordering is requested they sort through a temporary SQLite
// database so that memory use stays flat.
package dataset
