// Package report assembles the final artifact of a pipeline run: the
// narrative analysis, validated chart specs, aggregate result tables, and
// run metadata. A Bundle is created once per run and treated as immutable
// once returned to the caller.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spiceroute/reportpipe/pkg/chart"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// PlaceholderNarrative replaces the narrative when insight generation
// failed but the run still completed with aggregates and charts.
const PlaceholderNarrative = "Narrative analysis is unavailable for this run. " +
	"The aggregate tables and charts below were produced normally."

// Metadata describes the run that produced a bundle.
type Metadata struct {
	RunID       string         `json:"run_id"`
	Label       string         `json:"label,omitempty"`
	TableNames  []string       `json:"table_names"`
	RowCounts   map[string]int `json:"row_counts"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	// Warnings records non-fatal degradations: dropped charts, insight
	// placeholder substitution.
	Warnings []string `json:"warnings,omitempty"`
}

// Bundle is the final report artifact.
type Bundle struct {
	Narrative string
	// InsightDegraded is set when Narrative is the placeholder.
	InsightDegraded bool
	Charts          []chart.Spec
	Aggregates      []*table.Table
	Metadata        Metadata
}

// Degraded reports whether the bundle is missing insight or charts that
// were requested but dropped.
func (b *Bundle) Degraded() bool {
	return b.InsightDegraded || len(b.Metadata.Warnings) > 0
}

// AggregateCSVs renders each aggregate result as CSV, keyed by result
// name, for delivery alongside the chart specs that reference them.
func (b *Bundle) AggregateCSVs() map[string]string {
	out := make(map[string]string, len(b.Aggregates))
	for _, t := range b.Aggregates {
		out[t.Name] = t.MarshalCSV()
	}
	return out
}

// RenderMarkdown renders the bundle as a single markdown report: run
// header, narrative, aggregate tables, and chart listing.
func (b *Bundle) RenderMarkdown() string {
	var sb strings.Builder

	title := "Business Report"
	if b.Metadata.Label != "" {
		title = b.Metadata.Label
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Run:** %s  \n", b.Metadata.RunID)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", b.Metadata.CompletedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Sources:** %s\n\n", strings.Join(describeSources(b.Metadata), ", "))

	if b.InsightDegraded {
		sb.WriteString("> Note: narrative analysis was unavailable for this run.\n\n")
	}
	sb.WriteString(strings.TrimSpace(b.Narrative))
	sb.WriteString("\n")

	for _, t := range b.Aggregates {
		fmt.Fprintf(&sb, "\n## %s\n\n", t.Name)
		writeMarkdownTable(&sb, t)
	}

	if len(b.Charts) > 0 {
		sb.WriteString("\n## Charts\n\n")
		for _, c := range b.Charts {
			fmt.Fprintf(&sb, "- **%s** (%s on `%s`)\n", c.Title, c.Kind, c.Result)
		}
	}

	if len(b.Metadata.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range b.Metadata.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return sb.String()
}

func describeSources(m Metadata) []string {
	names := make([]string, len(m.TableNames))
	copy(names, m.TableNames)
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%s (%d rows)", n, m.RowCounts[n])
	}
	return out
}

func writeMarkdownTable(sb *strings.Builder, t *table.Table) {
	sb.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
	sep := make([]string, len(t.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for i := range t.Rows {
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = t.Get(i, c).String()
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}
