package plan

import (
	"fmt"
	"strings"

	"github.com/spiceroute/reportpipe/pkg/schema"
)

// Violation is one validation rule broken by a plan step.
type Violation struct {
	Step   int    // 0-indexed step position
	Rule   string // which rule was broken
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("step %d: %s: %s", v.Step+1, v.Rule, v.Detail)
}

// ValidationError rejects a plan. Its message is fed back to the
// reasoning service verbatim when the orchestrator asks for a
// regenerated plan, so details name the offending identifiers.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "plan rejected"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "plan rejected: " + strings.Join(parts, "; ")
}

const (
	RuleUnknownTable     = "unknown table"
	RuleUnknownColumn    = "unknown column"
	RuleUnknownOperation = "unknown operation"
	RuleNonNumericMetric = "non-numeric metric"
	RuleEmptyPlan        = "empty plan"
	RuleBadStep          = "malformed step"
)

// Validate checks a candidate plan against the schema descriptors.
// Rules are applied in order per step: (1) the source table must exist,
// (2) every grouping-key and metric column must exist in its schema,
// (3) the operation must be in the allowed vocabulary, (4) numeric
// operations must target a numeric column. A step may source the alias of
// an earlier step; its derived shape is tracked so chained steps validate
// against real output columns. Aliases must be unique and must not shadow
// a source table or duplicate one of the step's own grouping columns.
// Unvalidated plans are never executed.
func Validate(p *Plan, descriptors map[string]schema.Descriptor) error {
	if p == nil || len(p.Steps) == 0 {
		return &ValidationError{Violations: []Violation{{
			Step: 0, Rule: RuleEmptyPlan, Detail: "plan contains no steps",
		}}}
	}

	// known maps table name to its descriptor; derived step outputs are
	// registered under their alias as validation proceeds.
	known := make(map[string]schema.Descriptor, len(descriptors)+len(p.Steps))
	for name, d := range descriptors {
		known[name] = d
	}

	var violations []Violation
	for i, step := range p.Steps {
		stepViolations := validateStep(i, step, known)
		violations = append(violations, stepViolations...)
		if len(stepViolations) == 0 {
			known[step.Alias] = derivedDescriptor(step, known[step.Table])
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateStep(i int, step Step, known map[string]schema.Descriptor) []Violation {
	var out []Violation

	if step.Alias == "" {
		out = append(out, Violation{Step: i, Rule: RuleBadStep, Detail: "step has no output alias"})
	} else {
		if _, exists := known[step.Alias]; exists {
			out = append(out, Violation{Step: i, Rule: RuleBadStep,
				Detail: fmt.Sprintf("alias %q collides with a source table or earlier step", step.Alias)})
		}
		for _, g := range step.GroupBy {
			if g == step.Alias {
				out = append(out, Violation{Step: i, Rule: RuleBadStep,
					Detail: fmt.Sprintf("alias %q duplicates grouping column %q", step.Alias, g)})
				break
			}
		}
	}

	d, ok := known[step.Table]
	if !ok {
		out = append(out, Violation{Step: i, Rule: RuleUnknownTable,
			Detail: fmt.Sprintf("table %q does not exist", step.Table)})
		return out
	}

	for _, g := range step.GroupBy {
		if _, ok := d.Column(g); !ok {
			out = append(out, Violation{Step: i, Rule: RuleUnknownColumn,
				Detail: fmt.Sprintf("grouping column %q not in table %q", g, step.Table)})
		}
	}
	metricCol, metricOK := d.Column(step.Column)
	if !metricOK {
		out = append(out, Violation{Step: i, Rule: RuleUnknownColumn,
			Detail: fmt.Sprintf("metric column %q not in table %q", step.Column, step.Table)})
	}

	if !step.Op.Known() {
		out = append(out, Violation{Step: i, Rule: RuleUnknownOperation,
			Detail: fmt.Sprintf("operation %q is not in the allowed vocabulary", step.Op)})
	} else if step.Op.Numeric() && metricOK && metricCol.Type != schema.TypeNumber {
		out = append(out, Violation{Step: i, Rule: RuleNonNumericMetric,
			Detail: fmt.Sprintf("operation %q requires a numeric column but %q is %s", step.Op, step.Column, metricCol.Type)})
	}

	for _, f := range step.Filters {
		if _, ok := d.Column(f.Column); !ok {
			out = append(out, Violation{Step: i, Rule: RuleUnknownColumn,
				Detail: fmt.Sprintf("filter column %q not in table %q", f.Column, step.Table)})
		}
		if !f.Cmp.Known() {
			out = append(out, Violation{Step: i, Rule: RuleUnknownOperation,
				Detail: fmt.Sprintf("filter comparison %q is not in the allowed vocabulary", f.Cmp)})
		}
	}
	if step.Sort != nil {
		if !contains(step.OutputColumns(), step.Sort.Column) {
			out = append(out, Violation{Step: i, Rule: RuleUnknownColumn,
				Detail: fmt.Sprintf("sort column %q is not an output column of the step", step.Sort.Column)})
		}
	}
	if step.Limit < 0 {
		out = append(out, Violation{Step: i, Rule: RuleBadStep,
			Detail: fmt.Sprintf("negative limit %d", step.Limit)})
	}
	return out
}

// derivedDescriptor is the shape of a step's output: grouping columns keep
// their source types, the alias column is numeric (every operation in the
// vocabulary produces a number).
func derivedDescriptor(step Step, source schema.Descriptor) schema.Descriptor {
	d := schema.Descriptor{Table: step.Alias}
	for _, g := range step.GroupBy {
		if c, ok := source.Column(g); ok {
			d.Columns = append(d.Columns, c)
		}
	}
	d.Columns = append(d.Columns, schema.Column{Name: step.Alias, Type: schema.TypeNumber})
	return d
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
