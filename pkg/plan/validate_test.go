package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiceroute/reportpipe/pkg/schema"
)

func salesSchema() map[string]schema.Descriptor {
	return schema.ByTable([]schema.Descriptor{{
		Table:    "sales",
		RowCount: 3,
		Columns: []schema.Column{
			{Name: "date", Type: schema.TypeDate},
			{Name: "location", Type: schema.TypeString},
			{Name: "amount", Type: schema.TypeNumber},
		},
	}})
}

func validStep() Step {
	return Step{
		Table:   "sales",
		GroupBy: []string{"location"},
		Op:      OpSum,
		Column:  "amount",
		Alias:   "total_by_location",
	}
}

func requireRejected(t *testing.T, err error, rule string) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	rules := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		rules[i] = v.Rule
	}
	assert.Contains(t, rules, rule)
	return verr
}

func TestValidate_AcceptsWellFormedPlan(t *testing.T) {
	p := &Plan{Steps: []Step{validStep()}}
	require.NoError(t, Validate(p, salesSchema()))
}

func TestValidate_RejectsEmptyPlan(t *testing.T) {
	requireRejected(t, Validate(&Plan{}, salesSchema()), RuleEmptyPlan)
	requireRejected(t, Validate(nil, salesSchema()), RuleEmptyPlan)
}

// Each rule is checked by mutating exactly one field of an otherwise
// valid step, so a rule regression cannot hide behind another rule.
func TestValidate_RejectsSingleFieldMutations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Step)
		rule   string
	}{
		{"unknown table", func(s *Step) { s.Table = "revenue" }, RuleUnknownTable},
		{"unknown grouping column", func(s *Step) { s.GroupBy = []string{"region"} }, RuleUnknownColumn},
		{"unknown metric column", func(s *Step) { s.Column = "profit" }, RuleUnknownColumn},
		{"unknown operation", func(s *Step) { s.Op = "median" }, RuleUnknownOperation},
		{"numeric op on string column", func(s *Step) { s.Column = "location" }, RuleNonNumericMetric},
		{"missing alias", func(s *Step) { s.Alias = "" }, RuleBadStep},
		{"alias shadows source table", func(s *Step) { s.Alias = "sales" }, RuleBadStep},
		{"alias duplicates grouping column", func(s *Step) { s.Alias = "location" }, RuleBadStep},
		{"unknown filter column", func(s *Step) {
			s.Filters = []Filter{{Column: "ghost", Cmp: CmpEq, Value: "x"}}
		}, RuleUnknownColumn},
		{"unknown filter comparison", func(s *Step) {
			s.Filters = []Filter{{Column: "location", Cmp: "like", Value: "x"}}
		}, RuleUnknownOperation},
		{"sort on non-output column", func(s *Step) {
			s.Sort = &Sort{Column: "date"}
		}, RuleUnknownColumn},
		{"negative limit", func(s *Step) { s.Limit = -1 }, RuleBadStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := validStep()
			tt.mutate(&step)
			requireRejected(t, Validate(&Plan{Steps: []Step{step}}, salesSchema()), tt.rule)
		})
	}
}

func TestValidate_CountAllowedOnNonNumericColumn(t *testing.T) {
	step := validStep()
	step.Op = OpCount
	step.Column = "location"
	require.NoError(t, Validate(&Plan{Steps: []Step{step}}, salesSchema()))

	step.Op = OpDistinctCount
	require.NoError(t, Validate(&Plan{Steps: []Step{step}}, salesSchema()))
}

func TestValidate_RejectsDuplicateAliasAcrossSteps(t *testing.T) {
	first := validStep()
	second := validStep()
	second.Op = OpMean
	requireRejected(t, Validate(&Plan{Steps: []Step{first, second}}, salesSchema()), RuleBadStep)
}

func TestValidate_ChainedStepSourcesEarlierAlias(t *testing.T) {
	first := validStep()
	second := Step{
		Table:   first.Alias,
		GroupBy: []string{"location"},
		Op:      OpMax,
		Column:  first.Alias, // the derived metric column is numeric
		Alias:   "peak_total",
	}
	require.NoError(t, Validate(&Plan{Steps: []Step{first, second}}, salesSchema()))
}

func TestValidate_ChainedStepCannotSeeSourceOnlyColumns(t *testing.T) {
	first := validStep()
	second := Step{
		Table:   first.Alias,
		GroupBy: []string{"date"}, // not carried into the first step's output
		Op:      OpMax,
		Column:  first.Alias,
		Alias:   "peak_total",
	}
	requireRejected(t, Validate(&Plan{Steps: []Step{first, second}}, salesSchema()), RuleUnknownColumn)
}

func TestValidate_ReportsAllViolationsForFeedback(t *testing.T) {
	step := validStep()
	step.Table = "ghost_table"
	other := validStep()
	other.Op = "median"

	err := Validate(&Plan{Steps: []Step{step, other}}, salesSchema())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 2)

	// The message names the offending identifiers so it can be fed back
	// to the reasoning service verbatim.
	assert.Contains(t, verr.Error(), "ghost_table")
	assert.Contains(t, verr.Error(), "median")
}
