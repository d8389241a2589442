package pipeline

import (
	"fmt"
	"strings"

	"github.com/spiceroute/reportpipe/pkg/table"
)

// maxPromptRows caps how many rows of an aggregate result are shown to
// the reasoning service. Results are aggregates, so this is rarely hit.
const maxPromptRows = 50

// formatResults renders aggregate result tables for the insight prompt.
// Only aggregated numbers and grouping labels appear here, never source
// rows.
func formatResults(results []*table.Table) string {
	var sb strings.Builder
	for i, t := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## %s (%d rows)\n\n", t.Name, len(t.Rows))
		sb.WriteString(strings.Join(t.Columns, " | ") + "\n")

		rows := len(t.Rows)
		if rows > maxPromptRows {
			rows = maxPromptRows
		}
		for r := 0; r < rows; r++ {
			cells := make([]string, len(t.Columns))
			for c, col := range t.Columns {
				cells[c] = formatCell(t.Get(r, col))
			}
			sb.WriteString(strings.Join(cells, " | ") + "\n")
		}
		if len(t.Rows) > maxPromptRows {
			fmt.Fprintf(&sb, "... and %d more rows\n", len(t.Rows)-maxPromptRows)
		}
	}
	return sb.String()
}

// formatShapes renders only the structure of the aggregate results for
// the chart prompt: names, columns, and row counts, no values.
func formatShapes(results []*table.Table) string {
	var sb strings.Builder
	for _, t := range results {
		fmt.Fprintf(&sb, "- %s: columns [%s], %d rows\n",
			t.Name, strings.Join(t.Columns, ", "), len(t.Rows))
	}
	return sb.String()
}

// formatCell renders a value for the reasoning service. Long floats are
// rounded to two decimals so the model is not confused by
// 3.3333333333333335-style output.
func formatCell(v table.Value) string {
	if n, ok := v.AsNumber(); ok {
		if n != float64(int64(n)) {
			return fmt.Sprintf("%.2f", n)
		}
	}
	s := v.String()
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}
