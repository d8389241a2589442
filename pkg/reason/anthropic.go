package reason

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v5"
)

// DefaultTimeout bounds a single reasoning-service call. A timeout is a
// recoverable error: the caller's retry policy treats it like a malformed
// response.
const DefaultTimeout = 60 * time.Second

// AnthropicClient implements Client using the Anthropic API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	maxTries  uint
	log       *slog.Logger
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) AnthropicOption {
	return func(c *AnthropicClient) { c.timeout = d }
}

// WithLogger sets the logger for call-level logging.
func WithLogger(log *slog.Logger) AnthropicOption {
	return func(c *AnthropicClient) { c.log = log }
}

// WithTransportRetries sets how many times a transport failure is retried
// with exponential backoff before surfacing. This covers network errors
// only; semantic re-prompting is the pipeline's concern.
func WithTransportRetries(n uint) AnthropicOption {
	return func(c *AnthropicClient) { c.maxTries = n + 1 }
}

// NewAnthropicClient creates a reasoning-service client backed by the
// Anthropic API. Credentials come from ANTHROPIC_API_KEY.
func NewAnthropicClient(model anthropic.Model, maxTokens int64, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		timeout:   DefaultTimeout,
		maxTries:  2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the conversation to the model and returns the response
// text.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt string, conv Conversation) (string, error) {
	messages := make([]anthropic.MessageParam, 0, conv.Len())
	for _, turn := range conv.Turns() {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := backoff.Retry(callCtx, func() (string, error) {
		msg, err := c.client.Messages.New(callCtx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: messages,
		})
		if err != nil {
			if callCtx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", backoff.Permanent(fmt.Errorf("no text content in response"))
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))

	duration := time.Since(start)
	if err != nil {
		if c.log != nil {
			c.log.Error("anthropic call failed", "duration", duration, "error", err)
		}
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("reasoning service call timed out after %s: %w", c.timeout, err)
		}
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	if c.log != nil {
		c.log.Info("anthropic call completed", "duration", duration, "turns", conv.Len())
	}
	return text, nil
}
