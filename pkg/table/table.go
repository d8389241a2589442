// Package table holds the in-memory tabular data model: named tables of
// typed scalar values with a fixed, ordered column set.
package table

import (
	"fmt"
	"strings"
)

// Row maps column names to cell values. Rows in a table share the table's
// column set; missing entries read as null.
type Row map[string]Value

// Table is a named, ordered sequence of rows over a fixed column set.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given column order.
func New(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds a row. Values for columns outside the table's column set are
// dropped; absent columns read as null.
func (t *Table) Append(r Row) {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		if v, ok := r[c]; ok {
			row[c] = v
		}
	}
	t.Rows = append(t.Rows, row)
}

// Get returns the cell at the given row and column, null if absent.
func (t *Table) Get(i int, column string) Value {
	if i < 0 || i >= len(t.Rows) {
		return Null()
	}
	return t.Rows[i][column]
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// KeyOf returns a canonical string key for the tuple of the row's values in
// the given columns. Identical tuples yield identical keys.
func (t *Table) KeyOf(i int, columns []string) string {
	var sb strings.Builder
	for _, c := range columns {
		t.Get(i, c).encodeKey(&sb)
	}
	return sb.String()
}

// MarshalCSV renders the table as CSV text with a header row. Cells are
// rendered with Value.String; cells containing separators are quoted.
func (t *Table) MarshalCSV() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(quoteAll(t.Columns), ","))
	sb.WriteByte('\n')
	for i := range t.Rows {
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = csvQuote(t.Get(i, c).String())
		}
		sb.WriteString(strings.Join(cells, ","))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = csvQuote(s)
	}
	return out
}

func csvQuote(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// String returns a short identity for logging.
func (t *Table) String() string {
	return fmt.Sprintf("%s(%d cols, %d rows)", t.Name, len(t.Columns), len(t.Rows))
}
