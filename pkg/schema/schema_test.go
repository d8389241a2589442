package schema

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiceroute/reportpipe/pkg/table"
)

func TestExtract_InfersColumnTypes(t *testing.T) {
	tbl := table.New("sales", "location", "amount", "active")
	tbl.Append(table.Row{"location": table.String("A"), "amount": table.Number(100), "active": table.Bool(true)})
	tbl.Append(table.Row{"location": table.String("B"), "amount": table.Number(200), "active": table.Bool(false)})

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	d := descriptors[0]
	assert.Equal(t, "sales", d.Table)
	assert.Equal(t, 2, d.RowCount)

	loc, ok := d.Column("location")
	require.True(t, ok)
	assert.Equal(t, TypeString, loc.Type)
	assert.Equal(t, 2, loc.DistinctCount)

	amt, ok := d.Column("amount")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, amt.Type)

	act, ok := d.Column("active")
	require.True(t, ok)
	assert.Equal(t, TypeBool, act.Type)
}

func TestExtract_MixedColumnWhenNoMajorityType(t *testing.T) {
	// Half strings, half numbers: no kind reaches the 90% tolerance.
	tbl := table.New("t", "c")
	for i := 0; i < 5; i++ {
		tbl.Append(table.Row{"c": table.String("x")})
		tbl.Append(table.Row{"c": table.Number(float64(i))})
	}

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)

	c, ok := descriptors[0].Column("c")
	require.True(t, ok)
	assert.Equal(t, TypeMixed, c.Type)
}

func TestExtract_StrayCellWithinToleranceKeepsMajorityType(t *testing.T) {
	// 19 numbers and 1 string: the majority share is 95%, above tolerance.
	tbl := table.New("t", "c")
	for i := 0; i < 19; i++ {
		tbl.Append(table.Row{"c": table.Number(float64(i))})
	}
	tbl.Append(table.Row{"c": table.String("oops")})

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)

	c, ok := descriptors[0].Column("c")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, c.Type)
}

func TestExtract_NullFractionScansFullColumn(t *testing.T) {
	// Nulls sit beyond the inference sample but must still be counted.
	tbl := table.New("t", "c")
	for i := 0; i < 300; i++ {
		if i < 250 {
			tbl.Append(table.Row{"c": table.Number(1)})
		} else {
			tbl.Append(table.Row{})
		}
	}

	opts := DefaultOptions()
	opts.SampleRows = 200
	descriptors, err := Extract([]*table.Table{tbl}, opts)
	require.NoError(t, err)

	c, ok := descriptors[0].Column("c")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, c.Type)
	assert.InDelta(t, 50.0/300.0, c.NullFraction, 1e-9)
}

func TestExtract_HighCardinalityColumnHidesDistinctCount(t *testing.T) {
	tbl := table.New("t", "id")
	for i := 0; i < 100; i++ {
		tbl.Append(table.Row{"id": table.String(fmt.Sprintf("id-%03d", i))})
	}

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)

	c, ok := descriptors[0].Column("id")
	require.True(t, ok)
	assert.True(t, c.HighCardinality)
	assert.Zero(t, c.DistinctCount)
}

func TestExtract_FailsOnMalformedTables(t *testing.T) {
	t.Run("zero columns", func(t *testing.T) {
		_, err := Extract([]*table.Table{table.New("bare")}, DefaultOptions())
		var extractionErr *ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "bare", extractionErr.Table)
	})

	t.Run("duplicate column", func(t *testing.T) {
		_, err := Extract([]*table.Table{table.New("dup", "a", "a")}, DefaultOptions())
		var extractionErr *ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Contains(t, extractionErr.Reason, "duplicate column")
	})

	t.Run("row outside column set", func(t *testing.T) {
		tbl := table.New("bad", "a")
		tbl.Rows = append(tbl.Rows, table.Row{"a": table.Number(1), "ghost": table.Number(2)})
		_, err := Extract([]*table.Table{tbl}, DefaultOptions())
		var extractionErr *ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Contains(t, extractionErr.Reason, "ghost")
	})
}

func TestPromptText_ContainsStructureButNoCellValues(t *testing.T) {
	tbl := table.New("customers", "name", "spend")
	tbl.Append(table.Row{"name": table.String("Alice Example"), "spend": table.Number(1234)})
	tbl.Append(table.Row{"name": table.String("Bob Sample"), "spend": table.Number(5678)})

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)

	text := PromptText(descriptors)
	assert.Contains(t, text, "customers")
	assert.Contains(t, text, "name")
	assert.Contains(t, text, "spend")

	// No row-level values may ever reach the prompt.
	assert.NotContains(t, text, "Alice")
	assert.NotContains(t, text, "Bob")
	assert.NotContains(t, text, "1234")
	assert.NotContains(t, text, "5678")
}

func TestJoinHints_SameNameAndTypeAcrossTables(t *testing.T) {
	sales := table.New("sales", "location", "amount")
	sales.Append(table.Row{"location": table.String("A"), "amount": table.Number(100)})
	staffing := table.New("staffing", "location", "amount")
	staffing.Append(table.Row{"location": table.String("A"), "amount": table.String("two shifts")})

	descriptors, err := Extract([]*table.Table{sales, staffing}, DefaultOptions())
	require.NoError(t, err)

	hints := JoinHints(descriptors)
	// "location" is string in both tables; "amount" is number in one and
	// string in the other, so it is not joinable.
	require.Len(t, hints, 1)
	assert.Equal(t, "location", hints[0].Column)
	assert.Equal(t, TypeString, hints[0].Type)
	assert.Equal(t, []string{"sales", "staffing"}, hints[0].Tables)
}

func TestJoinHints_NoneForSingleTable(t *testing.T) {
	tbl := table.New("sales", "location")
	tbl.Append(table.Row{"location": table.String("A")})

	descriptors, err := Extract([]*table.Table{tbl}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, JoinHints(descriptors))
}

func TestPromptText_IncludesJoinHints(t *testing.T) {
	sales := table.New("sales", "location")
	sales.Append(table.Row{"location": table.String("A")})
	staffing := table.New("staffing", "location")
	staffing.Append(table.Row{"location": table.String("A")})

	descriptors, err := Extract([]*table.Table{sales, staffing}, DefaultOptions())
	require.NoError(t, err)

	text := PromptText(descriptors)
	assert.Contains(t, text, "Joinable columns")
	assert.Contains(t, text, "location (string): sales, staffing")

	// A single table renders no hint block.
	solo, err := Extract([]*table.Table{sales}, DefaultOptions())
	require.NoError(t, err)
	assert.NotContains(t, PromptText(solo), "Joinable columns")
}

func TestPromptText_SortedByTableName(t *testing.T) {
	b := table.New("beta", "x")
	b.Append(table.Row{"x": table.Number(1)})
	a := table.New("alpha", "x")
	a.Append(table.Row{"x": table.Number(1)})

	descriptors, err := Extract([]*table.Table{b, a}, DefaultOptions())
	require.NoError(t, err)

	text := PromptText(descriptors)
	alpha, beta := strings.Index(text, "alpha"), strings.Index(text, "beta")
	require.GreaterOrEqual(t, alpha, 0)
	require.GreaterOrEqual(t, beta, 0)
	assert.Less(t, alpha, beta)
}
