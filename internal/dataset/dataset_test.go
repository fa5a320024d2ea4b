package dataset

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scritchley/orc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qvalidate/internal/testutil"
	"github.com/roach88/qvalidate/internal/value"
)

type orderRow struct {
	OrderKey int64   `parquet:"o_orderkey"`
	Status   string  `parquet:"o_status"`
	Price    float64 `parquet:"o_totalprice"`
	Urgent   bool    `parquet:"o_urgent"`
}

func loadRows(t *testing.T, src Source, opts Options) (value.Schema, []value.Row) {
	t.Helper()
	ctx := context.Background()

	d, err := NewLoader(nil).Load(ctx, src, opts)
	require.NoError(t, err)
	defer d.Close()

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	defer cur.Close()

	rows, err := Drain(cur)
	require.NoError(t, err)
	return d.Schema(), rows
}

func rowStrings(rows []value.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String()
	}
	return out
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)

	for _, name := range []string{"orc", "json", "csv", "sqlite"} {
		f, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, Format(name), f)
	}

	_, err = ParseFormat("avro")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadORC(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteORC(t, filepath.Join(dir, "part-00000.orc"),
		"struct<l_orderkey:bigint,l_returnflag:string,l_tax:double>",
		[][]any{
			{int64(7), "R", 0.08},
			{nil, "N", 0.0},
		})
	testutil.WriteFile(t, filepath.Join(dir, "_SUCCESS"), "")

	schema, rows := loadRows(t, Source{Path: dir, Format: FormatORC}, Options{})
	assert.Equal(t, value.Schema{
		{Name: "l_orderkey", Kind: value.KindInt},
		{Name: "l_returnflag", Kind: value.KindText},
		{Name: "l_tax", Kind: value.KindFloat},
	}, schema)
	assert.Equal(t, []string{"[7, R, 0.08]", "[null, N, 0]"}, rowStrings(rows))

	d, err := NewLoader(nil).Load(context.Background(), Source{Path: dir, Format: FormatORC}, Options{})
	require.NoError(t, err)
	defer d.Close()
	n, err := d.NumRows(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestORCValueConversion(t *testing.T) {
	v, err := orcValue(orc.NewDecimal(big.NewInt(-1050), 2), value.KindDecimal)
	require.NoError(t, err)
	assert.True(t, value.Compare(value.MustDecimal("-10.50"), v, 0))

	v, err = orcValue(int8(-3), value.KindInt)
	require.NoError(t, err)
	assert.Equal(t, value.Int(-3), v)

	v, err = orcValue(orc.Date{Time: time.Date(1998, 9, 2, 0, 0, 0, 0, time.UTC)}, value.KindText)
	require.NoError(t, err)
	assert.Equal(t, value.Text("1998-09-02"), v)

	_, err = orcValue(map[string]any{}, value.KindText)
	require.Error(t, err)
}

func TestLoadJSONLines(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "_schema.csv"), "id:int,amount:decimal,ratio:double,name,flag:boolean\n")
	testutil.WriteFile(t, filepath.Join(dir, "part-00000.json"),
		`{"id":1,"amount":10.50,"ratio":0.5,"name":"alpha","flag":true}`+"\n"+
			`{"ratio":"NaN","name":""}`+"\n")
	testutil.WriteFile(t, filepath.Join(dir, "part-00001.json"),
		`{"id":3,"amount":1E+2,"ratio":-1.5e3,"name":42,"flag":false,"extra":null}`+"\n")

	schema, rows := loadRows(t, Source{Path: dir, Format: FormatJSON}, Options{})
	assert.Equal(t, []string{"id", "amount", "ratio", "name", "flag"}, schema.Names())
	assert.Equal(t, value.KindDecimal, schema[1].Kind)

	require.Len(t, rows, 3)
	assert.True(t, value.RowEqual(value.Row{
		value.Int(1), value.MustDecimal("10.5"), value.Float(0.5), value.Text("alpha"), value.Bool(true),
	}, rows[0], 0))
	assert.Equal(t, value.Null{}, rows[1][0])
	assert.Equal(t, value.Null{}, rows[1][1])
	assert.Equal(t, "NaN", rows[1][2].String())
	assert.Equal(t, value.Text(""), rows[1][3])
	assert.Equal(t, value.Null{}, rows[1][4])
	assert.True(t, value.RowEqual(value.Row{
		value.Int(3), value.MustDecimal("100"), value.Float(-1500), value.Text("42"), value.Bool(false),
	}, rows[2], 0))
}

func TestLoadJSONNeedsSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part-00000.json")
	testutil.WriteFile(t, path, `{"id":1}`+"\n")

	_, err := NewLoader(nil).Load(context.Background(), Source{Path: path, Format: FormatJSON}, Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "_schema.csv")
}

func TestLoadJSONBadFieldReportsRecord(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "_schema.csv"), "id:int\n")
	testutil.WriteFile(t, filepath.Join(dir, "part-00000.json"), `{"id":1}`+"\n"+`{"id":"two"}`+"\n")

	ctx := context.Background()
	d, err := NewLoader(nil).Load(ctx, Source{Path: dir, Format: FormatJSON}, Options{Streaming: true})
	require.NoError(t, err)
	defer d.Close()

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	defer cur.Close()

	_, err = Drain(cur)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `record 2, column "id"`)
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.parquet")
	testutil.WriteParquet(t, path, []orderRow{
		{OrderKey: 3, Status: "F", Price: 10.5, Urgent: true},
		{OrderKey: 1, Status: "O", Price: 2.25},
	})

	schema, rows := loadRows(t, Source{Path: path, Format: FormatParquet}, Options{})
	assert.Equal(t, value.Schema{
		{Name: "o_orderkey", Kind: value.KindInt},
		{Name: "o_status", Kind: value.KindText},
		{Name: "o_totalprice", Kind: value.KindFloat},
		{Name: "o_urgent", Kind: value.KindBool},
	}, schema)
	assert.Equal(t, []string{"[3, F, 10.5, true]", "[1, O, 2.25, false]"}, rowStrings(rows))
}

func TestLoadCSVTypedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part-0.csv")
	testutil.WriteCSV(t, path,
		[]string{"id:int", "amount:decimal(15,2)", "ratio:double", "name", "flag:boolean"},
		[][]string{
			{"1", "10.50", "0.5", "alpha", "true"},
			{"", "", "NaN", "", ""},
		})

	schema, rows := loadRows(t, Source{Path: path, Format: FormatCSV}, Options{})
	assert.Equal(t, []string{"id", "amount", "ratio", "name", "flag"}, schema.Names())
	assert.Equal(t, value.KindDecimal, schema[1].Kind)
	assert.Equal(t, value.KindText, schema[3].Kind)

	require.Len(t, rows, 2)
	assert.True(t, value.RowEqual(value.Row{
		value.Int(1), value.MustDecimal("10.5"), value.Float(0.5), value.Text("alpha"), value.Bool(true),
	}, rows[0], 0))
	assert.Equal(t, value.Null{}, rows[1][0])
	assert.Equal(t, value.Null{}, rows[1][3])
	assert.Equal(t, "NaN", rows[1][2].String())
}

func TestLoadCSVNullValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part-0.csv")
	testutil.WriteCSV(t, path, []string{"id:int", "comment"},
		[][]string{{"1", ""}, {"", `\N`}})
	src := Source{Path: path, Format: FormatCSV}
	ctx := context.Background()

	read := func(l *Loader) []value.Row {
		d, err := l.Load(ctx, src, Options{})
		require.NoError(t, err)
		defer d.Close()
		cur, err := d.Rows(ctx)
		require.NoError(t, err)
		defer cur.Close()
		rows, err := Drain(cur)
		require.NoError(t, err)
		return rows
	}

	rows := read(NewLoader(nil))
	assert.Equal(t, value.Null{}, rows[0][1])
	assert.Equal(t, value.Text(`\N`), rows[1][1])

	rows = read(NewLoader(nil, WithCSVNullValue(`\N`)))
	assert.Equal(t, value.Text(""), rows[0][1])
	assert.Equal(t, value.Null{}, rows[1][0])
	assert.Equal(t, value.Null{}, rows[1][1])
}

func TestLoadCSVRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	testutil.WriteCSV(t, path, []string{"id:uuid"}, nil)

	_, err := NewLoader(nil).Load(context.Background(), Source{Path: path, Format: FormatCSV}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "uuid"`)
}

func TestLoadCSVBadFieldReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	testutil.WriteCSV(t, path, []string{"id:int"}, [][]string{{"1"}, {"two"}})

	ctx := context.Background()
	d, err := NewLoader(nil).Load(ctx, Source{Path: path, Format: FormatCSV}, Options{Streaming: true})
	require.NoError(t, err)
	defer d.Close()

	n, err := d.NumRows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	defer cur.Close()

	_, err = Drain(cur)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q1.db")
	testutil.WriteSQLite(t, path, "result",
		[]string{"l_returnflag TEXT", "sum_qty DECIMAL(15,2)", "avg_price DOUBLE", "cnt BIGINT", "note"},
		[][]any{
			{"A", "37734107.00", 25.5, 1478493, nil},
			{"N", 991417, 38.25, 38854, 7},
		})

	schema, rows := loadRows(t, Source{Path: path, Format: FormatSQLite}, Options{})
	assert.Equal(t, value.Schema{
		{Name: "l_returnflag", Kind: value.KindText},
		{Name: "sum_qty", Kind: value.KindDecimal},
		{Name: "avg_price", Kind: value.KindFloat},
		{Name: "cnt", Kind: value.KindInt},
		{Name: "note", Kind: value.KindText},
	}, schema)

	require.Len(t, rows, 2)
	assert.True(t, value.RowEqual(value.Row{
		value.Text("A"), value.MustDecimal("37734107"), value.Float(25.5), value.Int(1478493), value.Null{},
	}, rows[0], 0))
	assert.Equal(t, value.Text("7"), rows[1][4])
}

func TestLoadSQLitePicksResultTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.db")
	testutil.WriteSQLite(t, path, "metadata", []string{"k TEXT"}, [][]any{{"x"}})
	testutil.WriteSQLite(t, path, "result", []string{"v INTEGER"}, [][]any{{1}, {2}})

	_, rows := loadRows(t, Source{Path: path, Format: FormatSQLite}, Options{})
	assert.Equal(t, []string{"[1]", "[2]"}, rowStrings(rows))
}

func TestLoadSQLiteAmbiguousTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.db")
	testutil.WriteSQLite(t, path, "a", []string{"v INTEGER"}, nil)
	testutil.WriteSQLite(t, path, "b", []string{"v INTEGER"}, nil)

	_, err := NewLoader(nil).Load(context.Background(), Source{Path: path, Format: FormatSQLite}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `none is named "result"`)
}

func TestLoadDirectoryConcatenatesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	header := []string{"id:int"}
	testutil.WriteCSV(t, filepath.Join(dir, "part-00001.csv"), header, [][]string{{"3"}})
	testutil.WriteCSV(t, filepath.Join(dir, "part-00000.csv"), header, [][]string{{"1"}, {"2"}})
	testutil.WriteFile(t, filepath.Join(dir, "_SUCCESS"), "")
	testutil.WriteFile(t, filepath.Join(dir, ".part-00000.csv.crc"), "junk")
	testutil.WriteFile(t, filepath.Join(dir, "README.txt"), "not data")

	ctx := context.Background()
	d, err := NewLoader(nil).Load(ctx, Source{Path: dir, Format: FormatCSV}, Options{})
	require.NoError(t, err)
	defer d.Close()

	n, err := d.NumRows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	defer cur.Close()
	rows, err := Drain(cur)
	require.NoError(t, err)
	assert.Equal(t, []string{"[1]", "[2]", "[3]"}, rowStrings(rows))
}

func TestLoadDirectorySchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, filepath.Join(dir, "a.csv"), []string{"id:int"}, nil)
	testutil.WriteCSV(t, filepath.Join(dir, "b.csv"), []string{"id:text"}, nil)

	_, err := NewLoader(nil).Load(context.Background(), Source{Path: dir, Format: FormatCSV}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differs from")
}

func TestLoadEmptyDirectory(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), Source{Path: t.TempDir(), Format: FormatParquet}, Options{})
	require.ErrorIs(t, err, ErrNoDataFiles)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(),
		Source{Path: filepath.Join(t.TempDir(), "nope"), Format: FormatCSV}, Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadExcludesColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q18.csv")
	testutil.WriteCSV(t, path,
		[]string{"c_name", "o_orderkey:int", "sum_qty:decimal"},
		[][]string{{"Customer#1", "42", "300"}})

	schema, rows := loadRows(t, Source{Path: path, Format: FormatCSV},
		Options{Exclude: []string{"o_orderkey", "not_a_column"}})
	assert.Equal(t, []string{"c_name", "sum_qty"}, schema.Names())
	assert.Equal(t, []string{"[Customer#1, 300]"}, rowStrings(rows))
}

func TestIgnoreOrderingSortsIdenticallyInBothModes(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.csv")
	right := filepath.Join(dir, "right.csv")
	header := []string{"price:double", "name", "id:int"}
	testutil.WriteCSV(t, left, header, [][]string{
		{"2.5", "b", "2"},
		{"1.5", "a", "1"},
		{"", "", ""},
		{"0.1", "a", "1"},
		{"1.5", "a", "1"},
	})
	testutil.WriteCSV(t, right, header, [][]string{
		{"1.5", "a", "1"},
		{"", "", ""},
		{"0.1", "a", "1"},
		{"1.5", "a", "1"},
		{"2.5", "b", "2"},
	})

	var results [][]string
	for _, streaming := range []bool{false, true} {
		for _, path := range []string{left, right} {
			opts := Options{IgnoreOrdering: true, Streaming: streaming}
			_, rows := loadRows(t, Source{Path: path, Format: FormatCSV}, opts)
			results = append(results, rowStrings(rows))
		}
	}

	want := []string{"[null, null, null]", "[0.1, a, 1]", "[1.5, a, 1]", "[1.5, a, 1]", "[2.5, b, 2]"}
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestStreamingWithoutOrderingKeepsFileOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	testutil.WriteCSV(t, path, []string{"id:int"}, [][]string{{"3"}, {"1"}, {"2"}})

	_, rows := loadRows(t, Source{Path: path, Format: FormatCSV}, Options{Streaming: true})
	assert.Equal(t, []string{"[3]", "[1]", "[2]"}, rowStrings(rows))
}

func TestSpillIsRemovedOnClose(t *testing.T) {
	spillDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "q.parquet")
	testutil.WriteParquet(t, path, []orderRow{{OrderKey: 2}, {OrderKey: 1}})

	ctx := context.Background()
	d, err := NewLoader(nil, WithTempDir(spillDir)).Load(ctx,
		Source{Path: path, Format: FormatParquet}, Options{IgnoreOrdering: true, Streaming: true})
	require.NoError(t, err)

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	rows, err := Drain(cur)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, value.Int(1), rows[0][0])

	entries, err := os.ReadDir(spillDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, cur.Close())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	entries, err = os.ReadDir(spillDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRowsCanOnlyBeReadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	testutil.WriteCSV(t, path, []string{"id:int"}, [][]string{{"1"}})

	ctx := context.Background()
	d, err := NewLoader(nil).Load(ctx, Source{Path: path, Format: FormatCSV}, Options{})
	require.NoError(t, err)
	defer d.Close()

	cur, err := d.Rows(ctx)
	require.NoError(t, err)
	defer cur.Close()

	_, err = d.Rows(ctx)
	require.ErrorIs(t, err, ErrAlreadyRead)
}

func TestCursorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cur := newSliceCursor(ctx, []value.Row{{value.Int(1)}, {value.Int(2)}})

	require.True(t, cur.Next())
	cancel()
	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

func TestSourceJoin(t *testing.T) {
	src := Source{Path: "/data/run1", Format: FormatCSV}.Join("query18")
	assert.Equal(t, filepath.Join("/data/run1", "query18"), src.Path)
	assert.Equal(t, FormatCSV, src.Format)
}
