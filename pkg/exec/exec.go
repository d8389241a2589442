// Package exec deterministically applies a validated aggregation plan to
// in-memory tables. Identical plans over identical tables always produce
// byte-identical results: there is no randomness, no wall-clock
// dependence, and group ordering is canonical.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spiceroute/reportpipe/pkg/plan"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// ExecutionError reports a deterministic computation failure. It is never
// retried: re-running the same plan over the same data fails identically.
type ExecutionError struct {
	Step   int
	Alias  string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at step %d (%s): %s", e.Step+1, e.Alias, e.Reason)
}

// Executor applies plan steps to tables owned exclusively by the current
// run. It holds no shared state; a zero Executor is usable.
type Executor struct {
	log *slog.Logger
}

// New creates an Executor. log may be nil.
func New(log *slog.Logger) *Executor {
	return &Executor{log: log}
}

// Run executes the validated plan against the source tables, producing one
// aggregate result table per step, in plan order. A step may source the
// alias of an earlier step; steps are executed in declared order so the
// dependency is always satisfied. The plan must have passed validation;
// Run still guards against impossible computations with ExecutionError.
func (e *Executor) Run(ctx context.Context, p *plan.Plan, tables []*table.Table) ([]*table.Table, error) {
	sources := make(map[string]*table.Table, len(tables)+len(p.Steps))
	for _, t := range tables {
		sources[t.Name] = t
	}

	results := make([]*table.Table, 0, len(p.Steps))
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, ok := sources[step.Table]
		if !ok {
			return nil, &ExecutionError{Step: i, Alias: step.Alias,
				Reason: fmt.Sprintf("source table %q not found", step.Table)}
		}
		result, err := e.runStep(i, step, src)
		if err != nil {
			return nil, err
		}
		if e.log != nil {
			e.log.Info("executor: step completed", "step", i+1, "alias", step.Alias,
				"op", step.Op, "groups", len(result.Rows))
		}
		results = append(results, result)
		sources[step.Alias] = result
	}
	return results, nil
}

// group collects the rows sharing one grouping-key tuple.
type group struct {
	key    []table.Value // tuple of grouping values, in GroupBy order
	rowIdx []int
}

func (e *Executor) runStep(stepIdx int, step plan.Step, src *table.Table) (*table.Table, error) {
	rows := filterRows(src, step.Filters)

	// Partition by the exact grouping tuple. Null is its own group, not
	// dropped.
	byKey := make(map[string]*group)
	var order []string
	for _, i := range rows {
		key := src.KeyOf(i, step.GroupBy)
		g, ok := byKey[key]
		if !ok {
			tuple := make([]table.Value, len(step.GroupBy))
			for j, c := range step.GroupBy {
				tuple[j] = src.Get(i, c)
			}
			g = &group{key: tuple}
			byKey[key] = g
			order = append(order, key)
		}
		g.rowIdx = append(g.rowIdx, i)
	}

	// Canonical ordering: sort groups by their key tuple so output is
	// byte-stable regardless of input row order within groups.
	sort.Slice(order, func(a, b int) bool {
		return compareTuples(byKey[order[a]].key, byKey[order[b]].key) < 0
	})

	out := table.New(step.Alias, step.OutputColumns()...)
	for _, key := range order {
		g := byKey[key]
		metric, include, err := aggregate(stepIdx, step, src, g)
		if err != nil {
			return nil, err
		}
		if !include {
			// A group whose metric column is entirely null has no
			// defined numeric aggregate; it is omitted rather than
			// emitted as an error value.
			continue
		}
		row := make(table.Row, len(step.GroupBy)+1)
		for j, c := range step.GroupBy {
			row[c] = g.key[j]
		}
		row[step.Alias] = metric
		out.Append(row)
	}

	if step.Sort != nil {
		sortResult(out, *step.Sort, step.GroupBy)
	}
	if step.Limit > 0 && len(out.Rows) > step.Limit {
		out.Rows = out.Rows[:step.Limit]
	}
	return out, nil
}

// aggregate computes the step's operation over one group. include is false
// when the group must be omitted (numeric aggregate over only nulls).
func aggregate(stepIdx int, step plan.Step, src *table.Table, g *group) (table.Value, bool, error) {
	switch step.Op {
	case plan.OpCount:
		// count counts every row in the group, nulls included.
		return table.Number(float64(len(g.rowIdx))), true, nil

	case plan.OpDistinctCount:
		distinct := make(map[string]struct{})
		for _, i := range g.rowIdx {
			if src.Get(i, step.Column).IsNull() {
				continue
			}
			distinct[src.KeyOf(i, []string{step.Column})] = struct{}{}
		}
		return table.Number(float64(len(distinct))), true, nil

	case plan.OpSum, plan.OpMean, plan.OpMin, plan.OpMax:
		nums, err := numericValues(stepIdx, step, src, g.rowIdx)
		if err != nil {
			return table.Value{}, false, err
		}
		if len(nums) == 0 {
			return table.Value{}, false, nil
		}
		switch step.Op {
		case plan.OpSum:
			var sum float64
			for _, n := range nums {
				sum += n
			}
			return table.Number(sum), true, nil
		case plan.OpMean:
			var sum float64
			for _, n := range nums {
				sum += n
			}
			return table.Number(sum / float64(len(nums))), true, nil
		case plan.OpMin:
			min := nums[0]
			for _, n := range nums[1:] {
				if n < min {
					min = n
				}
			}
			return table.Number(min), true, nil
		default:
			max := nums[0]
			for _, n := range nums[1:] {
				if n > max {
					max = n
				}
			}
			return table.Number(max), true, nil
		}

	default:
		return table.Value{}, false, &ExecutionError{Step: stepIdx, Alias: step.Alias,
			Reason: fmt.Sprintf("operation %q not implemented", step.Op)}
	}
}

// numericValues gathers the non-null metric values of a group. Numeric
// aggregation ignores nulls; a non-null, non-numeric value is a
// deterministic failure (type inference is sampled, so a stray cell can
// slip past validation).
func numericValues(stepIdx int, step plan.Step, src *table.Table, rowIdx []int) ([]float64, error) {
	nums := make([]float64, 0, len(rowIdx))
	for _, i := range rowIdx {
		v := src.Get(i, step.Column)
		if v.IsNull() {
			continue
		}
		n, ok := v.AsNumber()
		if !ok {
			return nil, &ExecutionError{Step: stepIdx, Alias: step.Alias,
				Reason: fmt.Sprintf("column %q holds a non-numeric %s value at row %d", step.Column, v.Kind(), i+1)}
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// filterRows returns the indexes of rows passing every filter, in input
// order. Null cells never satisfy a filter.
func filterRows(src *table.Table, filters []plan.Filter) []int {
	out := make([]int, 0, len(src.Rows))
	for i := range src.Rows {
		keep := true
		for _, f := range filters {
			if !matches(src.Get(i, f.Column), f) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, i)
		}
	}
	return out
}

func matches(v table.Value, f plan.Filter) bool {
	if v.IsNull() {
		return false
	}
	if f.Cmp == plan.CmpIn {
		operands, ok := f.Value.([]any)
		if !ok {
			return false
		}
		for _, o := range operands {
			if v.Equal(coerce(o, v)) {
				return true
			}
		}
		return false
	}
	o := coerce(f.Value, v)
	cmp := v.Compare(o)
	switch f.Cmp {
	case plan.CmpEq:
		return cmp == 0
	case plan.CmpNe:
		return cmp != 0
	case plan.CmpGt:
		return v.Kind() == o.Kind() && cmp > 0
	case plan.CmpLt:
		return v.Kind() == o.Kind() && cmp < 0
	case plan.CmpGe:
		return v.Kind() == o.Kind() && cmp >= 0
	case plan.CmpLe:
		return v.Kind() == o.Kind() && cmp <= 0
	}
	return false
}

// coerce converts a decoded-JSON filter operand into a Value, reparsing
// strings against the cell's kind so "2024-01-01" can match a date cell.
func coerce(raw any, like table.Value) table.Value {
	switch x := raw.(type) {
	case float64:
		return table.Number(x)
	case bool:
		return table.Bool(x)
	case string:
		if like.Kind() != table.KindString {
			if parsed := table.ParseCell(x); parsed.Kind() == like.Kind() {
				return parsed
			}
		}
		return table.String(x)
	default:
		return table.Null()
	}
}

func compareTuples(a, b []table.Value) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

// sortResult orders output rows by the declared sort column, ties broken
// by the group-key tuple in ascending order so the ordering stays
// deterministic regardless of sort direction.
func sortResult(t *table.Table, s plan.Sort, groupBy []string) {
	sort.SliceStable(t.Rows, func(a, b int) bool {
		c := t.Rows[a][s.Column].Compare(t.Rows[b][s.Column])
		if s.Descending {
			c = -c
		}
		if c == 0 {
			for _, g := range groupBy {
				if c = t.Rows[a][g].Compare(t.Rows[b][g]); c != 0 {
					break
				}
			}
		}
		return c < 0
	})
}
