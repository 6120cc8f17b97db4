package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/subterminator/internal/retry"
)

// DefaultModel is used when no model is selected by argument, environment
// variable, or config.
const DefaultModel = "claude-sonnet-4-20250514"

// invokeTimeout bounds a single Invoke call, including every retry.
const invokeTimeout = 60 * time.Second

// Client dispatches completions to the Anthropic or OpenAI provider based on
// the selected model's name prefix, bounding every call to invokeTimeout and
// retrying transient failures with retry.Exponential(4, 1s, 4s).
type Client struct {
	anthropic   Provider
	openai      Provider
	model       string
	logger      *slog.Logger
	retryConfig retry.Config
}

// Config configures Client construction.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	// Model is the explicit model selection. If empty, SUBTERMINATOR_MODEL
	// is consulted, then DefaultModel.
	Model  string
	Logger *slog.Logger
}

// NewClient builds providers for whichever API keys are present and resolves
// the model to use in priority order: explicit argument, SUBTERMINATOR_MODEL
// environment variable, DefaultModel.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm_client")

	model := cfg.Model
	if model == "" {
		model = os.Getenv("SUBTERMINATOR_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	client := &Client{
		model:       model,
		logger:      logger,
		retryConfig: retry.Exponential(4, time.Second, 4*time.Second),
	}

	if cfg.AnthropicAPIKey != "" {
		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: cfg.AnthropicAPIKey})
		if err != nil {
			return nil, fmt.Errorf("llm: anthropic provider: %w", err)
		}
		client.anthropic = p
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := NewOpenAIProvider(OpenAIConfig{APIKey: cfg.OpenAIAPIKey})
		if err != nil {
			return nil, fmt.Errorf("llm: openai provider: %w", err)
		}
		client.openai = p
	}

	if _, err := client.providerFor(model); err != nil {
		return nil, err
	}
	return client, nil
}

// providerFor dispatches on the model name's prefix: "claude" routes to
// Anthropic, "gpt" routes to OpenAI. Any other prefix, or a provider whose
// API key was never configured, is a configuration error the caller should
// surface before the first turn rather than mid-run.
func (c *Client) providerFor(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "claude"):
		if c.anthropic == nil {
			return nil, fmt.Errorf("llm: model %q requires ANTHROPIC_API_KEY to be set", model)
		}
		return c.anthropic, nil
	case strings.HasPrefix(model, "gpt"):
		if c.openai == nil {
			return nil, fmt.Errorf("llm: model %q requires OPENAI_API_KEY to be set", model)
		}
		return c.openai, nil
	default:
		return nil, fmt.Errorf("llm: unrecognized model %q (expected a \"claude\" or \"gpt\" prefixed name)", model)
	}
}

// Invoke runs one conversation turn to completion, retrying transient
// provider failures with exponential backoff. The entire call, including all
// retries, is bounded by invokeTimeout regardless of the caller's context
// deadline (a tighter caller deadline is still honored).
func (c *Client) Invoke(ctx context.Context, messages []Message, tools []Tool, system string) (*AssistantMessage, error) {
	model := c.model
	provider, err := c.providerFor(model)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	req := &CompletionRequest{
		Model:     model,
		System:    system,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: DefaultMaxTokens,
	}

	cfg := c.retryConfig
	if cfg.MaxAttempts == 0 {
		cfg = retry.Exponential(4, time.Second, 4*time.Second)
	}
	msg, result := retry.DoWithValue(ctx, cfg, func() (*AssistantMessage, error) {
		chunks, err := provider.Complete(ctx, req)
		if err != nil {
			if !IsRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		out, err := collect(chunks)
		if err != nil {
			if !IsRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	})

	if result.Err != nil {
		c.logger.Warn("llm invoke failed", "provider", provider.Name(), "attempts", result.Attempts, "error", result.Err)
		return nil, NewLLMError(provider.Name(), result.Attempts, result.Err)
	}
	return msg, nil
}
