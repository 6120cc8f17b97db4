package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/subterminator/internal/retry"
)

// fakeProvider feeds a scripted sequence of chunk-channel-producing attempts,
// one slice of chunks per call to Complete, in order.
type fakeProvider struct {
	name     string
	attempts [][]*CompletionChunk
	calls    int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	if f.calls >= len(f.attempts) {
		return nil, errors.New("fakeProvider: no more scripted attempts")
	}
	chunks := f.attempts[f.calls]
	f.calls++

	ch := make(chan *CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newTestClient(provider Provider, model string) *Client {
	c := &Client{
		model:       model,
		retryConfig: retry.Exponential(4, time.Millisecond, 4*time.Millisecond),
	}
	switch {
	case model == "" || model[:6] == "claude":
		c.anthropic = provider
	default:
		c.openai = provider
	}
	return c
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	fp := &fakeProvider{
		name: "anthropic",
		attempts: [][]*CompletionChunk{
			{{Text: "hello "}, {Text: "world"}, {Done: true}},
		},
	}
	c := newTestClient(fp, "claude-sonnet-4-20250514")

	msg, err := c.Invoke(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", msg.Content)
	}
	if fp.calls != 1 {
		t.Errorf("expected 1 call, got %d", fp.calls)
	}
}

func TestInvokeRetriesOnTransientError(t *testing.T) {
	fp := &fakeProvider{
		name: "anthropic",
		attempts: [][]*CompletionChunk{
			{{Error: errors.New("connection reset by peer")}},
			{{Text: "recovered"}, {Done: true}},
		},
	}
	c := newTestClient(fp, "claude-sonnet-4-20250514")

	msg, err := c.Invoke(context.Background(), nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", msg.Content)
	}
	if fp.calls != 2 {
		t.Errorf("expected 2 calls, got %d", fp.calls)
	}
}

func TestInvokeDoesNotRetryPermanentError(t *testing.T) {
	fp := &fakeProvider{
		name: "anthropic",
		attempts: [][]*CompletionChunk{
			{{Error: errors.New("invalid api key")}},
		},
	}
	c := newTestClient(fp, "claude-sonnet-4-20250514")

	_, err := c.Invoke(context.Background(), nil, nil, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
	if llmErr.Attempts != 1 {
		t.Errorf("expected 1 attempt for a permanent error, got %d", llmErr.Attempts)
	}
	if fp.calls != 1 {
		t.Errorf("expected 1 call, got %d", fp.calls)
	}
}

func TestInvokeExhaustsRetriesAndWrapsLLMError(t *testing.T) {
	fp := &fakeProvider{
		name: "anthropic",
		attempts: [][]*CompletionChunk{
			{{Error: errors.New("timeout")}},
			{{Error: errors.New("timeout")}},
			{{Error: errors.New("timeout")}},
			{{Error: errors.New("timeout")}},
		},
	}
	c := newTestClient(fp, "claude-sonnet-4-20250514")

	_, err := c.Invoke(context.Background(), nil, nil, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
	if llmErr.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", llmErr.Attempts)
	}
	if fp.calls != 4 {
		t.Errorf("expected 4 provider calls, got %d", fp.calls)
	}
}

func TestProviderForRejectsUnknownModel(t *testing.T) {
	c := &Client{model: "llama-3"}
	if _, err := c.providerFor("llama-3"); err == nil {
		t.Fatal("expected an error for an unrecognized model prefix")
	}
}

func TestProviderForRejectsMissingAPIKey(t *testing.T) {
	c := &Client{}
	if _, err := c.providerFor("claude-sonnet-4-20250514"); err == nil {
		t.Fatal("expected an error when no anthropic provider is configured")
	}
}
