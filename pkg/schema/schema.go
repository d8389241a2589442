// Package schema derives privacy-safe structural summaries of tables.
// A Descriptor carries column names, inferred types, cardinality hints and
// null fractions, never row-level values, so it can be shown to the
// reasoning service without exposing source data.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spiceroute/reportpipe/pkg/table"
)

// ColumnType is the inferred logical type of a column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeNumber ColumnType = "number"
	TypeBool   ColumnType = "bool"
	TypeDate   ColumnType = "date"
	// TypeMixed marks columns whose sampled values disagree on type beyond
	// the inference tolerance. Mixed columns are never valid targets for
	// numeric aggregation.
	TypeMixed ColumnType = "mixed"
)

// Column summarizes one column of a table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// DistinctCount is the number of distinct non-null values, capped at
	// the high-cardinality threshold. Zero when HighCardinality is set.
	DistinctCount   int     `json:"distinct_count"`
	HighCardinality bool    `json:"high_cardinality"`
	NullFraction    float64 `json:"null_fraction"`
}

// Descriptor is the structural summary of a single table. It is created
// once per table per run and never mutated afterwards.
type Descriptor struct {
	Table    string   `json:"table"`
	RowCount int      `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// Column returns the descriptor's column with the given name.
func (d Descriptor) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ExtractionError reports a table whose shape cannot be summarized.
type ExtractionError struct {
	Table  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("schema extraction failed for table %q: %s", e.Table, e.Reason)
}

// Options bound the cost of extraction on large inputs.
type Options struct {
	// SampleRows caps how many rows are examined for type inference.
	SampleRows int
	// MixedTolerance is the minimum share of sampled non-null values the
	// majority type must reach before the column is typed as mixed.
	MixedTolerance float64
	// HighCardinalityThreshold is the distinct-count above which a column
	// is flagged high-cardinality instead of reporting an exact count.
	HighCardinalityThreshold int
}

// DefaultOptions matches the extraction bounds used by the pipeline.
func DefaultOptions() Options {
	return Options{
		SampleRows:               200,
		MixedTolerance:           0.9,
		HighCardinalityThreshold: 50,
	}
}

// Extract derives one Descriptor per input table. It fails with an
// ExtractionError if a table has zero columns or rows that reference
// columns outside the table's declared column set.
func Extract(tables []*table.Table, opts Options) ([]Descriptor, error) {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultOptions().SampleRows
	}
	if opts.MixedTolerance <= 0 || opts.MixedTolerance > 1 {
		opts.MixedTolerance = DefaultOptions().MixedTolerance
	}
	if opts.HighCardinalityThreshold <= 0 {
		opts.HighCardinalityThreshold = DefaultOptions().HighCardinalityThreshold
	}

	descriptors := make([]Descriptor, 0, len(tables))
	for _, t := range tables {
		d, err := extractOne(t, opts)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func extractOne(t *table.Table, opts Options) (Descriptor, error) {
	if len(t.Columns) == 0 {
		return Descriptor{}, &ExtractionError{Table: t.Name, Reason: "table has no columns"}
	}
	declared := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if declared[c] {
			return Descriptor{}, &ExtractionError{Table: t.Name, Reason: fmt.Sprintf("duplicate column %q", c)}
		}
		declared[c] = true
	}
	for i, row := range t.Rows {
		for c := range row {
			if !declared[c] {
				return Descriptor{}, &ExtractionError{
					Table:  t.Name,
					Reason: fmt.Sprintf("row %d has column %q outside the table's column set", i, c),
				}
			}
		}
	}

	d := Descriptor{Table: t.Name, RowCount: len(t.Rows), Columns: make([]Column, 0, len(t.Columns))}
	for _, name := range t.Columns {
		d.Columns = append(d.Columns, summarizeColumn(t, name, opts))
	}
	return d, nil
}

func summarizeColumn(t *table.Table, name string, opts Options) Column {
	col := Column{Name: name}

	// Type inference samples a bounded prefix; the majority kind wins
	// unless it falls below the tolerance, in which case the column is
	// mixed.
	sample := len(t.Rows)
	if sample > opts.SampleRows {
		sample = opts.SampleRows
	}
	kindCounts := map[table.Kind]int{}
	sampledNonNull := 0
	for i := 0; i < sample; i++ {
		v := t.Get(i, name)
		if v.IsNull() {
			continue
		}
		kindCounts[v.Kind()]++
		sampledNonNull++
	}
	col.Type = voteType(kindCounts, sampledNonNull, opts.MixedTolerance)

	// Null fraction and distinct count scan the full column; both are
	// cheap compared to inference and must reflect the real data.
	nulls := 0
	distinct := make(map[string]struct{})
	for i := range t.Rows {
		v := t.Get(i, name)
		if v.IsNull() {
			nulls++
			continue
		}
		if len(distinct) <= opts.HighCardinalityThreshold {
			distinct[t.KeyOf(i, []string{name})] = struct{}{}
		}
	}
	if len(t.Rows) > 0 {
		col.NullFraction = float64(nulls) / float64(len(t.Rows))
	}
	if len(distinct) > opts.HighCardinalityThreshold {
		col.HighCardinality = true
	} else {
		col.DistinctCount = len(distinct)
	}
	return col
}

func voteType(counts map[table.Kind]int, nonNull int, tolerance float64) ColumnType {
	if nonNull == 0 {
		return TypeString
	}
	var best table.Kind
	bestCount := -1
	for _, k := range []table.Kind{table.KindString, table.KindNumber, table.KindBool, table.KindDate} {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	if float64(bestCount)/float64(nonNull) < tolerance {
		return TypeMixed
	}
	switch best {
	case table.KindNumber:
		return TypeNumber
	case table.KindBool:
		return TypeBool
	case table.KindDate:
		return TypeDate
	default:
		return TypeString
	}
}

// JoinHint marks a column appearing under the same name with the same
// inferred type in more than one table, a candidate join key the
// reasoning service can group on consistently across tables.
type JoinHint struct {
	Column string     `json:"column"`
	Type   ColumnType `json:"type"`
	Tables []string   `json:"tables"`
}

// JoinHints derives the joinable-column hints for a set of descriptors.
// Mixed-typed columns are skipped; their matches are unreliable. Output
// order is deterministic: by column name, then type.
func JoinHints(descriptors []Descriptor) []JoinHint {
	type colKey struct {
		name string
		typ  ColumnType
	}
	byKey := make(map[colKey][]string)
	for _, d := range descriptors {
		for _, c := range d.Columns {
			if c.Type == TypeMixed {
				continue
			}
			k := colKey{name: c.Name, typ: c.Type}
			byKey[k] = append(byKey[k], d.Table)
		}
	}

	var hints []JoinHint
	for k, tables := range byKey {
		if len(tables) < 2 {
			continue
		}
		sort.Strings(tables)
		hints = append(hints, JoinHint{Column: k.name, Type: k.typ, Tables: tables})
	}
	sort.Slice(hints, func(i, j int) bool {
		if hints[i].Column != hints[j].Column {
			return hints[i].Column < hints[j].Column
		}
		return hints[i].Type < hints[j].Type
	})
	return hints
}

// ByTable indexes descriptors by table name.
func ByTable(descriptors []Descriptor) map[string]Descriptor {
	m := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Table] = d
	}
	return m
}

// PromptText renders descriptors as the schema block shown to the
// reasoning service. The output contains only structural information.
func PromptText(descriptors []Descriptor) string {
	sorted := make([]Descriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table < sorted[j].Table })

	var sb strings.Builder
	for i, d := range sorted {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s (%d rows):\n", d.Table, d.RowCount)
		for _, c := range d.Columns {
			card := fmt.Sprintf("%d distinct", c.DistinctCount)
			if c.HighCardinality {
				card = "high-cardinality"
			}
			fmt.Fprintf(&sb, "  - %s (%s, %s, %.0f%% null)\n", c.Name, c.Type, card, c.NullFraction*100)
		}
	}
	if hints := JoinHints(sorted); len(hints) > 0 {
		sb.WriteString("\nJoinable columns (same name and type in multiple tables):\n")
		for _, h := range hints {
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", h.Column, h.Type, strings.Join(h.Tables, ", "))
		}
	}
	return sb.String()
}
