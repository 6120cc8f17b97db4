package llm

import (
	"errors"
	"testing"
)

func TestCollectAssemblesTextAndToolCalls(t *testing.T) {
	ch := make(chan *CompletionChunk, 4)
	ch <- &CompletionChunk{Text: "check"}
	ch <- &CompletionChunk{Text: "ing page"}
	ch <- &CompletionChunk{ToolCall: &ToolCall{ID: "t1", Name: "browser_snapshot", Args: map[string]any{}}}
	ch <- &CompletionChunk{Done: true}
	close(ch)

	msg, err := collect(ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "checking page" {
		t.Errorf("expected %q, got %q", "checking page", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "browser_snapshot" {
		t.Errorf("expected one browser_snapshot tool call, got %+v", msg.ToolCalls)
	}
}

func TestCollectStopsOnError(t *testing.T) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{Text: "partial"}
	ch <- &CompletionChunk{Error: errors.New("stream broke")}
	close(ch)

	_, err := collect(ch)
	if err == nil || err.Error() != "stream broke" {
		t.Fatalf("expected the stream error to propagate, got %v", err)
	}
}

func TestCollectStopsAtDoneEvenWithUnreadChunksRemaining(t *testing.T) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{Text: "a", Done: true}
	ch <- &CompletionChunk{Text: "b"}

	msg, err := collect(ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "a" {
		t.Errorf("expected collect to stop at the Done chunk, got %q", msg.Content)
	}
}
