package validate

import (
	"github.com/roach88/qvalidate/internal/value"
)

// Outcome classifies a verdict.
type Outcome string

const (
	OutcomeMatch               Outcome = "match"
	OutcomeSkipped             Outcome = "skipped"
	OutcomeRowCountMismatch    Outcome = "row_count_mismatch"
	OutcomeColumnCountMismatch Outcome = "column_count_mismatch"
	OutcomeContentMismatch     Outcome = "content_mismatch"
	OutcomeError               Outcome = "error"
)

// Mismatch is one pair of rows that did not compare equal.
type Mismatch struct {
	// Row is the 0-based position of the pair in comparison order.
	Row   int64     `json:"row" yaml:"row"`
	Left  value.Row `json:"-" yaml:"-"`
	Right value.Row `json:"-" yaml:"-"`

	// LeftText and RightText render the rows for reports.
	LeftText  []string `json:"left" yaml:"left"`
	RightText []string `json:"right" yaml:"right"`
}

func newMismatch(row int64, left, right value.Row) Mismatch {
	return Mismatch{
		Row:       row,
		Left:      left,
		Right:     right,
		LeftText:  left.Strings(),
		RightText: right.Strings(),
	}
}

// Verdict is the outcome of comparing one query's two outputs.
type Verdict struct {
	Query         string     `json:"query" yaml:"query"`
	Matched       bool       `json:"matched" yaml:"matched"`
	Outcome       Outcome    `json:"outcome" yaml:"outcome"`
	LeftRows      int64      `json:"left_rows" yaml:"left_rows"`
	RightRows     int64      `json:"right_rows" yaml:"right_rows"`
	LeftColumns   int        `json:"left_columns,omitempty" yaml:"left_columns,omitempty"`
	RightColumns  int        `json:"right_columns,omitempty" yaml:"right_columns,omitempty"`
	RowsCompared  int64      `json:"rows_compared" yaml:"rows_compared"`
	MismatchCount int        `json:"mismatch_count" yaml:"mismatch_count"`
	Mismatches    []Mismatch `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`

	// Truncated is set when comparison stopped at the mismatch cap.
	Truncated bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SuiteResult collects the verdicts of a suite run in suite order.
type SuiteResult struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Verdicts []Verdict `json:"verdicts" yaml:"verdicts"`
	Failed   []string  `json:"failed" yaml:"failed"`
}

// Passed reports whether every query matched or was skipped.
func (r *SuiteResult) Passed() bool {
	return len(r.Failed) == 0
}

// FailedSet returns the failed query ids as a set.
func (r *SuiteResult) FailedSet() map[string]bool {
	set := make(map[string]bool, len(r.Failed))
	for _, id := range r.Failed {
		set[id] = true
	}
	return set
}
