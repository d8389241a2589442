// Package pipeline orchestrates the report run: schema extraction, plan
// generation against the reasoning service, plan validation, deterministic
// execution, and insight/chart synthesis, bundled into a final report.
// The pipeline owns the single conversation with the reasoning service for
// the run and the retry and degradation policy around it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spiceroute/reportpipe/pkg/exec"
	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/report"
	"github.com/spiceroute/reportpipe/pkg/schema"
)

// Pipeline sequences one run end to end. Runs are independent: every Run
// call owns its tables, descriptors, conversation, and results, so a
// single Pipeline may serve concurrent runs with no shared mutable state.
type Pipeline struct {
	cfg     *Config
	prompts *Prompts
	log     *slog.Logger
}

// New creates a Pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if cfg.Prompts == nil {
		prompts, err := LoadPrompts()
		if err != nil {
			return nil, err
		}
		cfg.Prompts = prompts
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxPlanRetries == 0 {
		cfg.MaxPlanRetries = 2
	}
	if cfg.MaxValidationRetries == 0 {
		cfg.MaxValidationRetries = 1
	}
	if cfg.FormatRetries == 0 {
		cfg.FormatRetries = 1
	}
	return &Pipeline{cfg: cfg, prompts: cfg.Prompts, log: cfg.Logger}, nil
}

func (p *Pipeline) logInfo(msg string, args ...any) {
	if p.log != nil {
		p.log.Info(msg, args...)
	}
}

// Run executes the full pipeline for one request. On success the bundle
// may still be degraded (placeholder narrative, dropped charts); a
// returned error is terminal and its stage is recoverable via
// FailureKind. If ctx is canceled, in-flight reasoning calls are
// abandoned and no partial bundle is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*report.Bundle, error) {
	started := p.cfg.Clock.Now()
	runID := uuid.NewString()
	state := StateReceived
	p.logInfo("pipeline: run started", "run", runID, "tables", len(req.Tables))

	fail := func(err error) (*report.Bundle, error) {
		p.logInfo("pipeline: run failed", "run", runID, "state", state, "kind", FailureKind(err), "error", err)
		return nil, err
	}

	// Schema extraction. Descriptors are privacy-safe: no row values.
	descriptors, err := schema.Extract(req.Tables, p.cfg.SchemaOptions)
	if err != nil {
		return fail(err)
	}
	state = StateSchemaExtracted
	p.logInfo("pipeline: schema extracted", "run", runID, "descriptors", len(descriptors))

	// Plan generation and validation loop against the reasoning service.
	var conv reason.Conversation
	state = StatePlanProposed
	pl, conv, err := p.proposePlan(ctx, descriptors, req, conv)
	if err != nil {
		return fail(err)
	}
	state = StatePlanValidated
	p.logInfo("pipeline: plan validated", "run", runID, "steps", len(pl.Steps))

	// Deterministic execution. Never retried: the same plan over the
	// same tables fails the same way.
	executor := exec.New(p.log)
	results, err := executor.Run(ctx, pl, req.Tables)
	if err != nil {
		return fail(err)
	}
	state = StateExecuted
	p.logInfo("pipeline: plan executed", "run", runID, "results", len(results))

	var warnings []string

	// Insight synthesis. Failure degrades to a placeholder narrative.
	narrative, conv, err := p.synthesizeInsight(ctx, results, conv)
	degraded := false
	if err != nil {
		if ctx.Err() != nil {
			return fail(err)
		}
		p.logInfo("pipeline: insight degraded", "run", runID, "error", err)
		warnings = append(warnings, err.Error())
		narrative = report.PlaceholderNarrative
		degraded = true
	}
	state = StateInsightReady

	// Chart generation. Invalid charts are dropped; total failure means
	// zero charts, not a failed run.
	charts, dropped, _, err := p.generateCharts(ctx, results, conv)
	if err != nil {
		if ctx.Err() != nil {
			return fail(err)
		}
		p.logInfo("pipeline: charts degraded", "run", runID, "error", err)
		warnings = append(warnings, err.Error())
	}
	warnings = append(warnings, dropped...)
	state = StateChartsReady

	rowCounts := make(map[string]int, len(req.Tables))
	tableNames := make([]string, 0, len(req.Tables))
	for _, t := range req.Tables {
		tableNames = append(tableNames, t.Name)
		rowCounts[t.Name] = len(t.Rows)
	}

	bundle := &report.Bundle{
		Narrative:       narrative,
		InsightDegraded: degraded,
		Charts:          charts,
		Aggregates:      results,
		Metadata: report.Metadata{
			RunID:       runID,
			Label:       req.Label,
			TableNames:  tableNames,
			RowCounts:   rowCounts,
			StartedAt:   started,
			CompletedAt: p.cfg.Clock.Now(),
			Warnings:    warnings,
		},
	}
	state = StateBundled
	p.logInfo("pipeline: run bundled", "run", runID, "state", state,
		"charts", len(bundle.Charts), "degraded", bundle.Degraded())
	return bundle, nil
}
