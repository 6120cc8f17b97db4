package mcp

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// newTestTransport wires a transport to `cat`, which echoes every JSON-RPC
// request line straight back on stdout. Since a request and a response share
// the `id` field, the echoed line resolves the pending call exactly as a
// real (empty) response would, letting the id-correlation and lifecycle
// logic be exercised without a real MCP server.
func newTestTransport(t *testing.T) *stdioTransport {
	t.Helper()
	cfg := &ServerConfig{Command: "cat", Timeout: 2 * time.Second}
	tr := newStdioTransport(cfg, slog.Default())
	if err := tr.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { tr.close() })
	return tr
}

func TestStdioTransportCallRoundTrip(t *testing.T) {
	tr := newTestTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := tr.call(ctx, "initialize", map[string]any{"protocolVersion": protocolVersion}); err != nil {
		t.Fatalf("call() error = %v", err)
	}
}

func TestStdioTransportCloseIsIdempotent(t *testing.T) {
	tr := newTestTransport(t)

	if err := tr.close(); err != nil {
		t.Fatalf("first close() error = %v", err)
	}
	if err := tr.close(); err != nil {
		t.Fatalf("second close() error = %v", err)
	}
}

func TestStdioTransportCallAfterCloseFails(t *testing.T) {
	tr := newTestTransport(t)
	tr.close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := tr.call(ctx, "tools/list", nil); err == nil {
		t.Error("expected error calling a closed transport, got nil")
	}
}

func TestParseNodeMajor(t *testing.T) {
	cases := map[string]int{
		"v18.19.0": 18,
		"v20.0.0":  20,
		"22.1.0":   22,
	}
	for version, want := range cases {
		got, err := parseNodeMajor(version)
		if err != nil {
			t.Fatalf("parseNodeMajor(%q) error = %v", version, err)
		}
		if got != want {
			t.Errorf("parseNodeMajor(%q) = %d, want %d", version, got, want)
		}
	}
}
