package pipeline

import (
	"context"
	"fmt"

	"github.com/spiceroute/reportpipe/pkg/chart"
	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// generateCharts asks the reasoning service for chart definitions over
// the aggregate result shapes (column names and counts only, no values).
// Decoding mirrors plan generation with a small format retry budget, but
// validation is lenient: a chart referencing an unknown result or column
// is dropped with a warning, and even zero surviving charts leaves the
// run successful.
func (p *Pipeline) generateCharts(ctx context.Context, results []*table.Table, conv reason.Conversation) ([]chart.Spec, []string, reason.Conversation, error) {
	userPrompt := fmt.Sprintf("%s\n\n# Aggregate result shapes\n\n%s", p.prompts.Charts, formatShapes(results))
	conv = conv.Append(reason.RoleUser, userPrompt)

	maxAttempts := p.cfg.FormatRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := p.cfg.Client.Complete(ctx, p.prompts.System, conv)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, conv, ctx.Err()
			}
			p.logInfo("pipeline: chart call failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		conv = conv.Append(reason.RoleAssistant, response)

		specs, derr := chart.Decode(response)
		if derr == nil {
			valid, dropped := chart.Validate(specs, results)
			for _, d := range dropped {
				p.logInfo("pipeline: chart dropped", "reason", d)
			}
			return valid, dropped, conv, nil
		}
		p.logInfo("pipeline: malformed chart response", "attempt", attempt, "error", derr)
		lastErr = derr
		if attempt < maxAttempts {
			conv = conv.Append(reason.RoleUser,
				fmt.Sprintf("Your previous response could not be parsed (%v). "+
					"Respond again with ONLY a valid JSON array of chart definitions.", derr))
		}
	}
	return nil, nil, conv, &ChartGenerationError{Err: lastErr}
}
