package validate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/qvalidate/internal/dataset"
	"github.com/roach88/qvalidate/internal/stream"
	"github.com/roach88/qvalidate/internal/testutil"
)

type suiteFixture struct {
	left, right dataset.Source
	queries     []stream.Query
}

// newSuiteFixture lays out a suite of five queries: query1 matches,
// query2 differs in content, query3 has no output on either side,
// query15_part1 is skipped and query4 differs in row count.
func newSuiteFixture(t *testing.T) suiteFixture {
	t.Helper()
	dir := t.TempDir()
	f := suiteFixture{
		left:  dataset.Source{Path: filepath.Join(dir, "left"), Format: dataset.FormatCSV},
		right: dataset.Source{Path: filepath.Join(dir, "right"), Format: dataset.FormatCSV},
	}
	header := []string{"id:int", "v:double"}
	write := func(root dataset.Source, id string, rows [][]string) {
		testutil.WriteCSV(t, filepath.Join(root.Path, id, "part-00000.csv"), header, rows)
	}

	write(f.left, "query1", [][]string{{"1", "1.5"}})
	write(f.right, "query1", [][]string{{"1", "1.5"}})
	write(f.left, "query2", [][]string{{"1", "1.5"}})
	write(f.right, "query2", [][]string{{"1", "2.5"}})
	write(f.left, "query4", [][]string{{"1", "1"}, {"2", "2"}})
	write(f.right, "query4", [][]string{{"1", "1"}})

	for i, id := range []string{"query1", "query2", "query3", "query15_part1", "query4"} {
		f.queries = append(f.queries, stream.Query{ID: id, Position: i + 1})
	}
	return f
}

func TestSuiteRun(t *testing.T) {
	f := newSuiteFixture(t)
	core, logs := observer.New(zapcore.DebugLevel)

	suite := NewSuite(newTestComparator(DefaultOptions()), zap.New(core),
		WithRunIDGenerator(testutil.NewFixedRunID("run-1")))
	result, err := suite.Run(context.Background(), f.queries, f.left, f.right)
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.False(t, result.Passed())
	assert.Equal(t, []string{"query2", "query3", "query4"}, result.Failed)

	require.Len(t, result.Verdicts, 5)
	outcomes := make([]Outcome, len(result.Verdicts))
	for i, v := range result.Verdicts {
		outcomes[i] = v.Outcome
		assert.Equal(t, f.queries[i].ID, v.Query)
	}
	assert.Equal(t, []Outcome{
		OutcomeMatch,
		OutcomeContentMismatch,
		OutcomeError,
		OutcomeSkipped,
		OutcomeRowCountMismatch,
	}, outcomes)
	assert.Contains(t, result.Verdicts[2].Error, "query=query3")

	assert.Equal(t, 1, logs.FilterMessage("results match").Len())
	assert.Equal(t, 1, logs.FilterMessage("comparison failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("row counts do not match").Len())
	unmatched := logs.FilterMessage("unmatched queries").All()
	require.Len(t, unmatched, 1)
	assert.Equal(t, "run-1", unmatched[0].ContextMap()["run_id"])
}

func TestSuiteRunParallelKeepsSuiteOrder(t *testing.T) {
	f := newSuiteFixture(t)

	sequential, err := NewSuite(newTestComparator(DefaultOptions()), nil,
		WithRunIDGenerator(testutil.NewFixedRunID("run"))).
		Run(context.Background(), f.queries, f.left, f.right)
	require.NoError(t, err)

	parallel, err := NewSuite(newTestComparator(DefaultOptions()), nil,
		WithParallelism(4), WithRunIDGenerator(testutil.NewFixedRunID("run"))).
		Run(context.Background(), f.queries, f.left, f.right)
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)
}

func TestSuiteRunAllMatch(t *testing.T) {
	f := newSuiteFixture(t)

	result, err := NewSuite(newTestComparator(DefaultOptions()), nil).
		Run(context.Background(), f.queries[:1], f.left, f.right)
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Empty(t, result.Failed)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.FailedSet())
}

func TestSuiteRunMissingRootIsConfigError(t *testing.T) {
	f := newSuiteFixture(t)
	missing := dataset.Source{Path: filepath.Join(t.TempDir(), "missing"), Format: dataset.FormatCSV}

	_, err := NewSuite(newTestComparator(DefaultOptions()), nil).
		Run(context.Background(), f.queries, missing, f.right)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestSuiteRunCancelled(t *testing.T) {
	f := newSuiteFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSuite(newTestComparator(DefaultOptions()), nil).Run(ctx, f.queries, f.left, f.right)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFailedSet(t *testing.T) {
	r := &SuiteResult{Failed: []string{"query2", "query9"}}
	assert.Equal(t, map[string]bool{"query2": true, "query9": true}, r.FailedSet())
}
