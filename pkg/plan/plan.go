// Package plan defines the vocabulary-constrained aggregation plan the
// reasoning service is asked to produce, and the validator that rejects
// plans referencing anything outside the known schema. Plans are data, not
// code: every step is a tagged record the executor can pattern-match
// exhaustively.
package plan

import (
	"encoding/json"
	"fmt"

	"github.com/spiceroute/reportpipe/pkg/reason"
)

// Op is an aggregation operation from the allowed vocabulary.
type Op string

const (
	OpSum           Op = "sum"
	OpMean          Op = "mean"
	OpCount         Op = "count"
	OpMin           Op = "min"
	OpMax           Op = "max"
	OpDistinctCount Op = "distinct_count"
)

// Known reports whether the operation is in the allowed vocabulary.
func (o Op) Known() bool {
	switch o {
	case OpSum, OpMean, OpCount, OpMin, OpMax, OpDistinctCount:
		return true
	}
	return false
}

// Numeric reports whether the operation requires a numeric metric column.
func (o Op) Numeric() bool {
	switch o {
	case OpSum, OpMean, OpMin, OpMax:
		return true
	}
	return false
}

// Cmp is a filter comparison operator.
type Cmp string

const (
	CmpEq Cmp = "eq"
	CmpNe Cmp = "ne"
	CmpGt Cmp = "gt"
	CmpLt Cmp = "lt"
	CmpGe Cmp = "ge"
	CmpLe Cmp = "le"
	CmpIn Cmp = "in"
)

// Known reports whether the comparison operator is in the vocabulary.
func (c Cmp) Known() bool {
	switch c {
	case CmpEq, CmpNe, CmpGt, CmpLt, CmpGe, CmpLe, CmpIn:
		return true
	}
	return false
}

// Filter restricts a step's input rows before grouping.
type Filter struct {
	Column string `json:"column"`
	Cmp    Cmp    `json:"cmp"`
	// Value holds the comparison operand as decoded JSON: a string,
	// number, bool, or (for "in") a list of those.
	Value any `json:"value"`
}

// Sort orders a step's aggregate output by one of its output columns.
type Sort struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Step is one aggregation: group rows of a source table by a key set and
// apply one operation to a metric column, producing an aliased result.
// A step's Table may name either a source table or the Alias of an
// earlier step.
type Step struct {
	Table   string   `json:"table"`
	GroupBy []string `json:"group_by"`
	Op      Op       `json:"op"`
	Column  string   `json:"column"`
	Alias   string   `json:"alias"`
	Filters []Filter `json:"filters,omitempty"`
	Sort    *Sort    `json:"sort,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// OutputColumns returns the column set of the step's result table:
// grouping keys in declared order, then the aliased metric.
func (s Step) OutputColumns() []string {
	out := make([]string, 0, len(s.GroupBy)+1)
	out = append(out, s.GroupBy...)
	return append(out, s.Alias)
}

// Plan is an ordered sequence of aggregation steps.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Decode parses a plan from reasoning-service output. The input is
// untrusted: markdown fences are tolerated, everything else must be the
// documented JSON shape. A decode failure is recoverable by re-prompting.
func Decode(text string) (*Plan, error) {
	raw := reason.ExtractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	return &p, nil
}
