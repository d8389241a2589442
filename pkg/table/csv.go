package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the formats tried, in order, when parsing a cell as a date.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// NormalizeName turns a file name into a logical table name: extension
// stripped, non-alphanumerics collapsed to underscores, lowercased.
func NormalizeName(fileName string) string {
	base := fileName
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.Trim(strings.ToLower(nameSanitizer.ReplaceAllString(base, "_")), "_")
}

// ReadCSV parses CSV content into a Table. The first record is the header.
// Cells are typed by parse attempt: number, then bool, then date, falling
// back to string. Empty cells become null.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv %q: empty input", name)
	}
	if err != nil {
		return nil, fmt.Errorf("csv %q: read header: %w", name, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	t := New(name, columns...)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv %q: row %d: %w", name, len(t.Rows)+2, err)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			if i < len(record) {
				row[c] = ParseCell(record[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ParseCell types a raw cell string. Empty and "null"/"NULL" become null.
func ParseCell(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return Null()
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		// Reject number-like strings with embedded commas unless they look
		// like thousands separators (digits on both sides).
		if !strings.Contains(s, ",") || thousandsSeparated(s) {
			return Number(f)
		}
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return Bool(strings.EqualFold(s, "true"))
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date(t)
		}
	}
	return String(s)
}

func thousandsSeparated(s string) bool {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		if p == "" {
			return false
		}
		if i > 0 && len(strings.SplitN(p, ".", 2)[0]) != 3 {
			return false
		}
	}
	return true
}
