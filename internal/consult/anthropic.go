package consult

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter calls the Anthropic API directly rather than
// shelling out, grounded on the teacher's internal/compact/haiku.go
// HaikuClient: same client construction, same exponential-backoff retry
// loop, generalized from a fixed Haiku summarization call to an
// arbitrary consultation prompt.
type AnthropicAdapter struct {
	client         anthropic.Client
	defaultModel   string
	maxRetries     int
	initialBackoff time.Duration
}

var _ Adapter = (*AnthropicAdapter)(nil)

// NewAnthropicAdapter builds a direct-API provider adapter. apiKey may
// be empty if ANTHROPIC_API_KEY is set in the environment; the SDK
// resolves it internally in that case.
func NewAnthropicAdapter(apiKey, defaultModel string) *AnthropicAdapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicAdapter{
		client:         anthropic.NewClient(opts...),
		defaultModel:   defaultModel,
		maxRetries:     3,
		initialBackoff: time.Second,
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Call(ctx context.Context, req Request) ToolResponse {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	text, err := a.callWithRetry(ctx, params)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		category := FailureNonzeroExit
		if ctx.Err() == context.DeadlineExceeded {
			category = FailureTimeout
		} else if ctx.Err() == context.Canceled {
			category = FailureCancelled
		}
		return ToolResponse{Tool: a.Name(), Model: model, ElapsedS: elapsed, Success: false, Category: category, Error: err.Error()}
	}
	return ToolResponse{Tool: a.Name(), Model: model, Text: text, ElapsedS: elapsed, Success: true}
}

func (a *AnthropicAdapter) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", errors.New("anthropic: empty response")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", errors.New("anthropic: unexpected content block type " + block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableAnthropicError(err) {
			return "", err
		}
	}
	return "", lastErr
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
