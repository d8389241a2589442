package pipeline

import (
	"context"
	"fmt"

	"github.com/spiceroute/reportpipe/pkg/plan"
	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/schema"
)

// proposePlan asks the reasoning service for an aggregation plan and runs
// the validation loop: a malformed response is re-prompted with a
// correction instruction within the plan retry budget, and a semantically
// rejected plan is regenerated with the rejection reason appended within
// the validation retry budget. Only a validated plan is ever returned.
func (p *Pipeline) proposePlan(ctx context.Context, descriptors []schema.Descriptor, req Request, conv reason.Conversation) (*plan.Plan, reason.Conversation, error) {
	userPrompt := buildPlanPrompt(p.prompts.Plan, schema.PromptText(descriptors), req.Context)
	conv = conv.Append(reason.RoleUser, userPrompt)

	pl, conv, err := p.completePlan(ctx, conv)
	if err != nil {
		return nil, conv, err
	}

	known := schema.ByTable(descriptors)
	for attempt := 1; ; attempt++ {
		verr := plan.Validate(pl, known)
		if verr == nil {
			return pl, conv, nil
		}
		p.logInfo("pipeline: plan rejected", "attempt", attempt, "reason", verr.Error())
		if attempt > p.cfg.MaxValidationRetries {
			return nil, conv, &PlanValidationError{Attempts: attempt, Err: verr}
		}
		conv = conv.Append(reason.RoleUser, rejectionPrompt(verr))
		pl, conv, err = p.completePlan(ctx, conv)
		if err != nil {
			return nil, conv, err
		}
	}
}

// completePlan obtains one well-formed (not yet validated) plan. A
// transport failure or timeout consumes an attempt and the same prompt is
// retried; a malformed response consumes an attempt and appends an
// explicit correction instruction.
func (p *Pipeline) completePlan(ctx context.Context, conv reason.Conversation) (*plan.Plan, reason.Conversation, error) {
	maxAttempts := p.cfg.MaxPlanRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := p.cfg.Client.Complete(ctx, p.prompts.System, conv)
		if err != nil {
			if ctx.Err() != nil {
				return nil, conv, ctx.Err()
			}
			p.logInfo("pipeline: plan call failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		conv = conv.Append(reason.RoleAssistant, response)

		pl, derr := plan.Decode(response)
		if derr == nil {
			return pl, conv, nil
		}
		p.logInfo("pipeline: malformed plan response", "attempt", attempt, "error", derr)
		lastErr = derr
		if attempt < maxAttempts {
			conv = conv.Append(reason.RoleUser, correctionPrompt(derr))
		}
	}
	return nil, conv, &PlanGenerationError{Attempts: maxAttempts, Err: lastErr}
}

func buildPlanPrompt(instructions, schemaText, businessContext string) string {
	if businessContext == "" {
		businessContext = "Generate summary insights for this business data."
	}
	return fmt.Sprintf("%s\n\n## Schema\n\n%s\n\n## Business request\n\n%s",
		instructions, schemaText, businessContext)
}

func correctionPrompt(decodeErr error) string {
	return fmt.Sprintf("Your previous response could not be parsed (%v). "+
		"Respond again with ONLY a valid JSON object matching the documented plan shape. "+
		"No prose, no markdown outside the JSON.", decodeErr)
}

func rejectionPrompt(verr error) string {
	return fmt.Sprintf("The plan was rejected by validation: %v. "+
		"Generate a corrected plan. Use only the exact table and column names from the schema "+
		"and only the allowed operations.", verr)
}
