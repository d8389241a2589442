package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/spiceroute/reportpipe/pkg/exec"
	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/schema"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// State is a stage of the pipeline run.
type State string

const (
	StateReceived        State = "received"
	StateSchemaExtracted State = "schema_extracted"
	StatePlanProposed    State = "plan_proposed"
	StatePlanValidated   State = "plan_validated"
	StateExecuted        State = "executed"
	StateInsightReady    State = "insight_ready"
	StateChartsReady     State = "charts_ready"
	StateBundled         State = "bundled"
	StateFailed          State = "failed"
)

// Config holds the configuration for the pipeline.
type Config struct {
	Logger *slog.Logger
	Client reason.Client
	// Prompts defaults to the embedded templates when nil.
	Prompts *Prompts
	// Clock supplies run timing metadata; defaults to the real clock.
	Clock clockwork.Clock
	// SchemaOptions bound schema extraction; zero values use defaults.
	SchemaOptions schema.Options
	// MaxPlanRetries is how many times a malformed (or timed-out) plan
	// response is re-prompted with a correction instruction before the
	// run fails. Total attempts are MaxPlanRetries+1. Default 2.
	MaxPlanRetries int
	// MaxValidationRetries is how many times a semantically rejected
	// plan is regenerated with the rejection reason appended. Default 1.
	MaxValidationRetries int
	// FormatRetries is how many times a malformed insight or chart
	// response is re-prompted before the run degrades. Default 1.
	FormatRetries int
}

// Request is one pipeline invocation: already-parsed tables plus the
// business-context prompt and an optional caller-supplied label.
type Request struct {
	Tables  []*table.Table
	Context string
	Label   string
}

// PlanGenerationError means no well-formed plan could be obtained within
// the retry budget. Fatal: without a plan there is nothing to execute.
type PlanGenerationError struct {
	Attempts int
	Err      error
}

func (e *PlanGenerationError) Error() string {
	return fmt.Sprintf("plan generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PlanGenerationError) Unwrap() error { return e.Err }

// PlanValidationError means every generated plan was rejected by
// validation, including regenerations. Fatal: unvalidated plans are never
// executed.
type PlanValidationError struct {
	Attempts int
	Err      error
}

func (e *PlanValidationError) Error() string {
	return fmt.Sprintf("plan validation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PlanValidationError) Unwrap() error { return e.Err }

// InsightGenerationError is non-fatal: the run completes with a
// placeholder narrative.
type InsightGenerationError struct {
	Err error
}

func (e *InsightGenerationError) Error() string {
	return fmt.Sprintf("insight generation failed: %v", e.Err)
}

func (e *InsightGenerationError) Unwrap() error { return e.Err }

// ChartGenerationError is non-fatal: the run completes with fewer (or
// zero) charts.
type ChartGenerationError struct {
	Err error
}

func (e *ChartGenerationError) Error() string {
	return fmt.Sprintf("chart generation failed: %v", e.Err)
}

func (e *ChartGenerationError) Unwrap() error { return e.Err }

// FailureKind names the failing stage of a terminal error, for callers
// that report "Failed(kind)" without unwrapping the chain themselves.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		schemaErr  *schema.ExtractionError
		planGenErr *PlanGenerationError
		planValErr *PlanValidationError
		execErr    *exec.ExecutionError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "schema_extraction"
	case errors.As(err, &planGenErr):
		return "plan_generation"
	case errors.As(err, &planValErr):
		return "plan_validation"
	case errors.As(err, &execErr):
		return "execution"
	default:
		return "internal"
	}
}
