package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/qvalidate/internal/status"
	"github.com/roach88/qvalidate/internal/validate"
)

// CompareReport is the output of the compare command.
type CompareReport struct {
	RunID         string             `json:"run_id" yaml:"run_id"`
	Passed        bool               `json:"passed" yaml:"passed"`
	Verdicts      []validate.Verdict `json:"verdicts" yaml:"verdicts"`
	Failed        []string           `json:"failed" yaml:"failed"`
	StatusUpdates []status.Change    `json:"status_updates,omitempty" yaml:"status_updates,omitempty"`
}

func newCompareReport(result *validate.SuiteResult, changes []status.Change) *CompareReport {
	return &CompareReport{
		RunID:         result.RunID,
		Passed:        result.Passed(),
		Verdicts:      result.Verdicts,
		Failed:        result.Failed,
		StatusUpdates: changes,
	}
}

// RenderText prints the mismatch samples of every failed query, a summary
// table and the list of failed queries.
func (r *CompareReport) RenderText(w io.Writer) error {
	for _, v := range r.Verdicts {
		if len(v.Mismatches) == 0 {
			continue
		}
		fmt.Fprintf(w, "=== %s: %d mismatched rows", v.Query, v.MismatchCount)
		if v.Truncated {
			fmt.Fprintf(w, " (stopped after %d rows)", v.RowsCompared)
		}
		fmt.Fprintln(w, " ===")
		for _, m := range v.Mismatches {
			fmt.Fprintf(w, "Row %d:\n  left:  [%s]\n  right: [%s]\n",
				m.Row, strings.Join(m.LeftText, ", "), strings.Join(m.RightText, ", "))
		}
		fmt.Fprintln(w)
	}

	table := newTable(w)
	table.SetHeader([]string{"Query", "Outcome", "Left Rows", "Right Rows", "Mismatches", "Detail"})
	for _, v := range r.Verdicts {
		table.Append([]string{
			v.Query,
			string(v.Outcome),
			strconv.FormatInt(v.LeftRows, 10),
			strconv.FormatInt(v.RightRows, 10),
			strconv.Itoa(v.MismatchCount),
			verdictDetail(v),
		})
	}
	table.Render()
	fmt.Fprintln(w)

	if len(r.StatusUpdates) > 0 {
		fmt.Fprintf(w, "Updated %d run status records\n", len(r.StatusUpdates))
	}

	fmt.Fprintf(w, "Run %s: %d queries, %d failed\n", r.RunID, len(r.Verdicts), len(r.Failed))
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "Unmatched queries: %s\n", strings.Join(r.Failed, ", "))
	}
	return nil
}

func verdictDetail(v validate.Verdict) string {
	switch v.Outcome {
	case validate.OutcomeError:
		return v.Error
	case validate.OutcomeColumnCountMismatch:
		return fmt.Sprintf("%d != %d columns", v.LeftColumns, v.RightColumns)
	case validate.OutcomeRowCountMismatch:
		return fmt.Sprintf("%d != %d rows", v.LeftRows, v.RightRows)
	case validate.OutcomeContentMismatch:
		if v.Truncated {
			return "stopped at mismatch cap"
		}
		return fmt.Sprintf("%d rows compared", v.RowsCompared)
	default:
		return ""
	}
}
