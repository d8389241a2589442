package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// synthesizeInsight asks the reasoning service for the narrative analysis
// of the executed aggregates. The conversation already holds the plan
// exchange, so the model sees what it planned and why. A malformed
// (empty) response is re-prompted within the format retry budget; after
// that the error is returned and the caller degrades to a placeholder.
// Insight failure never fails the run.
func (p *Pipeline) synthesizeInsight(ctx context.Context, results []*table.Table, conv reason.Conversation) (string, reason.Conversation, error) {
	userPrompt := fmt.Sprintf("%s\n\n# Aggregate results\n\n%s", p.prompts.Insight, formatResults(results))
	conv = conv.Append(reason.RoleUser, userPrompt)

	maxAttempts := p.cfg.FormatRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := p.cfg.Client.Complete(ctx, p.prompts.System, conv)
		if err != nil {
			if ctx.Err() != nil {
				return "", conv, ctx.Err()
			}
			p.logInfo("pipeline: insight call failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		conv = conv.Append(reason.RoleAssistant, response)

		narrative := strings.TrimSpace(response)
		if narrative != "" {
			return narrative, conv, nil
		}
		lastErr = fmt.Errorf("empty narrative response")
		if attempt < maxAttempts {
			conv = conv.Append(reason.RoleUser,
				"Your previous response was empty. Write the markdown report as instructed.")
		}
	}
	return "", conv, &InsightGenerationError{Err: lastErr}
}
