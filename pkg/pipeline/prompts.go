package pipeline

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.md
var promptsFS embed.FS

// Prompts contains the pipeline prompt templates loaded from embedded
// files.
type Prompts struct {
	System  string // run-level role and guardrails
	Plan    string // aggregation plan instructions
	Insight string // narrative synthesis instructions
	Charts  string // chart definition instructions
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.System, err = loadPrompt("SYSTEM.md"); err != nil {
		return nil, err
	}
	if p.Plan, err = loadPrompt("PLAN.md"); err != nil {
		return nil, err
	}
	if p.Insight, err = loadPrompt("INSIGHT.md"); err != nil {
		return nil, err
	}
	if p.Charts, err = loadPrompt("CHARTS.md"); err != nil {
		return nil, err
	}
	return p, nil
}

func loadPrompt(name string) (string, error) {
	data, err := promptsFS.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
