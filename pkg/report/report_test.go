package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiceroute/reportpipe/pkg/chart"
	"github.com/spiceroute/reportpipe/pkg/table"
)

func sampleBundle(t *testing.T) *Bundle {
	t.Helper()
	agg := table.New("sales_by_location", "location", "total")
	agg.Append(table.Row{"location": table.String("A"), "total": table.Number(150)})
	agg.Append(table.Row{"location": table.String("B"), "total": table.Number(200)})

	completed, err := time.Parse(time.RFC3339, "2026-08-31T12:00:00Z")
	require.NoError(t, err)

	return &Bundle{
		Narrative: "## Executive Summary\n\nLocation B leads on revenue.",
		Charts: []chart.Spec{{
			Title:  "Sales by location",
			Result: "sales_by_location",
			Kind:   chart.KindBar,
			Encodings: []chart.Encoding{
				{Column: "location", Channel: chart.ChannelCategory},
				{Column: "total", Channel: chart.ChannelValue},
			},
		}},
		Aggregates: []*table.Table{agg},
		Metadata: Metadata{
			RunID:       "run-1",
			Label:       "Weekly Sales",
			TableNames:  []string{"sales"},
			RowCounts:   map[string]int{"sales": 3},
			StartedAt:   completed.Add(-2 * time.Second),
			CompletedAt: completed,
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := sampleBundle(t).RenderMarkdown()

	assert.Contains(t, md, "# Weekly Sales")
	assert.Contains(t, md, "run-1")
	assert.Contains(t, md, "sales (3 rows)")
	assert.Contains(t, md, "Location B leads on revenue.")
	assert.Contains(t, md, "## sales_by_location")
	assert.Contains(t, md, "| location | total |")
	assert.Contains(t, md, "| A | 150 |")
	assert.Contains(t, md, "**Sales by location** (bar on `sales_by_location`)")
	assert.NotContains(t, md, "## Warnings")
}

func TestRenderMarkdown_DegradedRun(t *testing.T) {
	b := sampleBundle(t)
	b.Narrative = PlaceholderNarrative
	b.InsightDegraded = true
	b.Metadata.Warnings = []string{"chart 2 (\"Trend\"): unknown chart kind \"pie\""}

	md := b.RenderMarkdown()
	assert.Contains(t, md, "narrative analysis was unavailable")
	assert.Contains(t, md, PlaceholderNarrative)
	assert.Contains(t, md, "## Warnings")
	assert.Contains(t, md, "unknown chart kind")
	assert.True(t, b.Degraded())
}

func TestDegraded(t *testing.T) {
	b := sampleBundle(t)
	assert.False(t, b.Degraded())

	b.Metadata.Warnings = []string{"dropped a chart"}
	assert.True(t, b.Degraded())
}

func TestAggregateCSVs(t *testing.T) {
	csvs := sampleBundle(t).AggregateCSVs()
	require.Len(t, csvs, 1)
	assert.Equal(t, "location,total\nA,150\nB,200\n", csvs["sales_by_location"])
}
