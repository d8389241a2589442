// Package reason adapts the external generative reasoning service. It
// owns the conversation model shared across the pipeline's calls and the
// helpers for handling the service's untrusted output.
package reason

import (
	"context"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prompt or response exchanged with the reasoning service.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is the ordered record of turns for a single pipeline run.
// It is an immutable append log: Append returns a new Conversation and
// never mutates the receiver, so callers can safely hold earlier states.
// Conversations are scoped to one run and never persisted or shared.
type Conversation struct {
	turns []Turn
}

// Append returns a new conversation with the turn added.
func (c Conversation) Append(role Role, content string) Conversation {
	turns := make([]Turn, 0, len(c.turns)+1)
	turns = append(turns, c.turns...)
	turns = append(turns, Turn{Role: role, Content: content})
	return Conversation{turns: turns}
}

// Turns returns a copy of the recorded turns in order.
func (c Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of recorded turns.
func (c Conversation) Len() int { return len(c.turns) }

// Client is the interface for the reasoning service. Complete sends the
// conversation (whose last turn must be a user prompt) with a system
// prompt and returns the assistant's response text. Implementations must
// honor ctx cancellation and apply their own per-call timeout.
type Client interface {
	Complete(ctx context.Context, systemPrompt string, conv Conversation) (string, error)
}
