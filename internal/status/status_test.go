package status

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qvalidate/internal/testutil"
)

func writeRecord(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.WriteFile(t, path, content)
	return path
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		queryStatus []string
		failed      bool
		want        ValidationStatus
	}{
		{"completed and failed", []string{"Completed"}, true, ValidationFail},
		{"completed with task failures and failed", []string{"CompletedWithTaskFailures"}, true, ValidationFail},
		{"run failed and failed", []string{"Failed"}, true, ValidationNotAttempted},
		{"no status and failed", nil, true, ValidationNotAttempted},
		{"completed and passed", []string{"Completed"}, false, ValidationPass},
		{"run failed and passed", []string{"Failed"}, false, ValidationPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.queryStatus, tt.failed))
		})
	}
}

func TestParseRecordAcceptsStringOrList(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"queryStatus": "Completed"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Completed"}, rec.QueryStatus())

	rec, err = ParseRecord([]byte(`{"queryStatus": ["Failed"], "queryValidationStatus": ["Pass"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Failed"}, rec.QueryStatus())
	assert.Equal(t, []string{"Pass"}, rec.ValidationStatus())
}

func TestParseRecordRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"missing queryStatus": `{"query": "query1"}`,
		"numeric queryStatus": `{"queryStatus": 3}`,
		"not an object":       `["Completed"]`,
		"not json":            `{"queryStatus": `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord([]byte(data))
			require.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestRecordMarshalPreservesFields(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"startTime": 1700000000123, "queryStatus": ["Completed"], "env": {"b": 1.50, "a": null}, "query": "query1"}`))
	require.NoError(t, err)

	assert.Equal(t, ValidationFail, rec.Apply(true))
	data, err := rec.Marshal()
	require.NoError(t, err)

	want := `{
  "env": {
    "a": null,
    "b": 1.50
  },
  "query": "query1",
  "queryStatus": [
    "Completed"
  ],
  "queryValidationStatus": [
    "Fail"
  ],
  "startTime": 1700000000123
}
`
	assert.Equal(t, want, string(data))
}

func TestRecordMarshalKeepsHTMLCharacters(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"queryStatus": ["Completed"], "sparkConf": {"spark.driver.extraJavaOptions": "-Dx=<y> & z"}, "query": "query7 -- a < b"}`))
	require.NoError(t, err)

	rec.Apply(false)
	data, err := rec.Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"spark.driver.extraJavaOptions": "-Dx=<y> & z"`)
	assert.Contains(t, string(data), `"query": "query7 -- a < b"`)
	assert.NotContains(t, string(data), `\u003c`)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.False(t, strings.HasSuffix(string(data), "\n\n"))
}

func TestFindRecord(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "power-query1-1700000000.json", `{"queryStatus":"Completed"}`)
	writeRecord(t, dir, "power-query11-1700000000.json", `{"queryStatus":"Completed"}`)
	writeRecord(t, dir, "power-query2-1.json", `{"queryStatus":"Completed"}`)
	writeRecord(t, dir, "other-query2-2.json", `{"queryStatus":"Completed"}`)

	r := NewReconciler(dir, nil)

	path, err := r.FindRecord("query1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "power-query1-1700000000.json"), path)

	_, err = r.FindRecord("query2")
	require.ErrorIs(t, err, ErrAmbiguousRecord)

	_, err = r.FindRecord("query3")
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	p1 := writeRecord(t, dir, "power-query1-1.json", `{"queryStatus":["Completed"],"queryValidationStatus":["Pass"]}`)
	p2 := writeRecord(t, dir, "power-query2-1.json", `{"queryStatus":["Failed"]}`)
	p3 := writeRecord(t, dir, "power-query3-1.json", `{"queryStatus":["Failed"]}`)
	p4 := writeRecord(t, dir, "power-query4-1.json", `{"queryStatus":"CompletedWithTaskFailures"}`)

	changes, err := NewReconciler(dir, nil).Reconcile(
		[]string{"query1", "query2", "query3", "query4"},
		map[string]bool{"query1": true, "query2": true, "query4": true},
	)
	require.NoError(t, err)
	require.Len(t, changes, 4)
	assert.Equal(t, Change{Query: "query1", Path: p1, Previous: []string{"Pass"}, Status: ValidationFail}, changes[0])

	for path, want := range map[string]string{
		p1: "Fail",
		p2: "NotAttempted",
		p3: "Pass",
		p4: "Fail",
	} {
		rec, err := LoadRecord(path)
		require.NoError(t, err)
		assert.Equal(t, []string{want}, rec.ValidationStatus(), path)
	}
}

func TestReconcileMissingRecordChangesNothing(t *testing.T) {
	dir := t.TempDir()
	before := `{"queryStatus":["Completed"]}`
	p1 := writeRecord(t, dir, "power-query1-1.json", before)

	_, err := NewReconciler(dir, nil).Reconcile([]string{"query1", "query2"}, nil)
	require.ErrorIs(t, err, ErrNoRecord)

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, before, string(data))
}

func TestReconcileMissingDirectory(t *testing.T) {
	_, err := NewReconciler(filepath.Join(t.TempDir(), "nope"), nil).Reconcile([]string{"query1"}, nil)
	require.ErrorIs(t, err, ErrNoDirectory)
}

func TestSaveKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, "power-query1-1.json", `{"queryStatus":"Completed"}`)
	require.NoError(t, os.Chmod(path, 0o600))

	rec, err := LoadRecord(path)
	require.NoError(t, err)
	rec.Apply(false)
	require.NoError(t, rec.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is removed")
}
