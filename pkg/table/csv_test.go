package table

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw      string
		wantKind Kind
	}{
		{"", KindNull},
		{"   ", KindNull},
		{"null", KindNull},
		{"NULL", KindNull},
		{"NaN", KindNull},
		{"42", KindNumber},
		{"-3.25", KindNumber},
		{"1,234.50", KindNumber},
		{"true", KindBool},
		{"FALSE", KindBool},
		{"2024-01-15", KindDate},
		{"2024-01-15 08:30:00", KindDate},
		{"01/15/2024", KindDate},
		{"East Side", KindString},
		{"12a", KindString},
		{"a,b", KindString},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, ParseCell(tt.raw).Kind())
		})
	}
}

func TestParseCell_ThousandsSeparators(t *testing.T) {
	v := ParseCell("1,234,567")
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 1234567.0, n)

	// Comma groups of the wrong width are not numbers.
	assert.Equal(t, KindString, ParseCell("12,34").Kind())
}

func TestReadCSV_TypesCellsAndPreservesColumnOrder(t *testing.T) {
	in := strings.NewReader(
		"date,location,amount,active\n" +
			"2024-01-01,A,100,true\n" +
			"2024-01-01,B,200,false\n" +
			"2024-01-02,A,,true\n")

	tbl, err := ReadCSV("sales", in)
	require.NoError(t, err)

	assert.Equal(t, "sales", tbl.Name)
	assert.Equal(t, []string{"date", "location", "amount", "active"}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)

	d, ok := tbl.Get(0, "date").AsDate()
	require.True(t, ok)
	assert.Equal(t, time.January, d.Month())

	n, ok := tbl.Get(1, "amount").AsNumber()
	require.True(t, ok)
	assert.Equal(t, 200.0, n)

	assert.True(t, tbl.Get(2, "amount").IsNull())

	b, ok := tbl.Get(2, "active").AsBool()
	require.True(t, ok)
	assert.True(t, b)
}

func TestReadCSV_EmptyInputFails(t *testing.T) {
	_, err := ReadCSV("empty", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sales Report.csv", "sales_report"},
		{"orders-2024.CSV", "orders_2024"},
		{"data/Q1 (final).csv", "q1_final"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestMarshalCSV_QuotesSeparatorsAndRoundTrips(t *testing.T) {
	tbl := New("t", "name", "note")
	tbl.Append(Row{"name": String(`say "hi"`), "note": String("a,b")})

	out := tbl.MarshalCSV()
	assert.Equal(t, "name,note\n\"say \"\"hi\"\"\",\"a,b\"\n", out)

	back, err := ReadCSV("t", strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, back.Rows, 1)
	s, ok := back.Get(0, "name").AsString()
	require.True(t, ok)
	assert.Equal(t, `say "hi"`, s)
}
