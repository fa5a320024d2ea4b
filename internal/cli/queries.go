package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/qvalidate/internal/stream"
)

// QueryList is the output of the queries command.
type QueryList struct {
	Queries []stream.Query `json:"queries" yaml:"queries"`
}

// RenderText prints one row per query.
func (l QueryList) RenderText(w io.Writer) error {
	table := newTable(w)
	table.SetHeader([]string{"#", "Query"})
	for _, q := range l.Queries {
		table.Append([]string{strconv.Itoa(q.Position), q.ID})
	}
	table.Render()
	_, err := fmt.Fprintf(w, "%d queries\n", len(l.Queries))
	return err
}

// NewQueriesCommand creates the queries command.
func NewQueriesCommand(rootOpts *RootOptions) *cobra.Command {
	var subQueries []string

	cmd := &cobra.Command{
		Use:   "queries <query-stream-file>",
		Short: "List the queries of a stream",
		Long: `List the query identifiers of a query stream file in suite order.

Blocks holding several statements are listed as <template>_partN, the
identifiers accepted by compare --sub-queries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			queries, err := loadQueries(args[0], subQueries)
			if err != nil {
				_ = formatter.Error(ErrCodeStream, err.Error(), nil)
				return err
			}
			return formatter.Success(QueryList{Queries: queries})
		},
	}

	cmd.Flags().StringSliceVar(&subQueries, "sub-queries", nil, "comma separated subset of queries to list")

	return cmd
}

// loadQueries parses a stream file and applies an optional subset.
func loadQueries(path string, subset []string) ([]stream.Query, error) {
	queries, err := stream.ParseFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse query stream", err)
	}
	if len(subset) == 0 {
		return queries, nil
	}
	queries, err = stream.Subset(queries, subset)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --sub-queries", err)
	}
	return queries, nil
}

// newTable returns a borderless, left aligned table.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
