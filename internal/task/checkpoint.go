package task

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// HumanIO abstracts the terminal interaction the Checkpoint Handler performs,
// so tests can script responses without a real tty.
type HumanIO interface {
	// Prompt writes msg then blocks for a single line of input. It returns
	// ctx.Err() if ctx is cancelled (e.g. by SIGINT) before a line arrives.
	Prompt(ctx context.Context, msg string) (string, error)
}

// stdioHumanIO is the production HumanIO backed by stdin/stdout. Reads run
// on a background goroutine so a cancelled context can interrupt a blocked
// prompt rather than leaving the run stuck waiting on a human who has
// already hit Ctrl-C.
type stdioHumanIO struct {
	out        io.Writer
	in         *bufio.Reader
	isTerminal bool
}

// NewStdioHumanIO builds a HumanIO reading from stdin and writing to stdout.
// If stdin is not attached to a terminal, Prompt fails fast instead of
// blocking forever on input that can never arrive -- a piped or backgrounded
// process has no human behind it to type a checkpoint response.
func NewStdioHumanIO() HumanIO {
	return &stdioHumanIO{
		out:        os.Stdout,
		in:         bufio.NewReader(os.Stdin),
		isTerminal: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

func (h *stdioHumanIO) Prompt(ctx context.Context, msg string) (string, error) {
	if !h.isTerminal {
		return "", fmt.Errorf("task: stdin is not a terminal; cannot prompt for a checkpoint response (run with --no-checkpoints for unattended use)")
	}
	fmt.Fprint(h.out, msg)

	type lineResult struct {
		line string
		err  error
	}
	resultCh := make(chan lineResult, 1)
	go func() {
		line, err := h.in.ReadString('\n')
		if err != nil && err != io.EOF {
			resultCh <- lineResult{err: err}
			return
		}
		resultCh <- lineResult{line: strings.TrimSpace(line)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		return res.line, res.err
	}
}

// CheckpointHandler owns predicate evaluation and all synchronous human
// interaction.
type CheckpointHandler struct {
	client             MCPClient
	human              HumanIO
	logger             *slog.Logger
	checkpointsEnabled bool
}

// NewCheckpointHandler builds a handler. checkpointsEnabled corresponds to
// the CLI's --no-checkpoints flag being absent.
func NewCheckpointHandler(client MCPClient, human HumanIO, logger *slog.Logger, checkpointsEnabled bool) *CheckpointHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointHandler{
		client:             client,
		human:              human,
		logger:             logger.With("component", "checkpoint_handler"),
		checkpointsEnabled: checkpointsEnabled,
	}
}

// ShouldCheckpoint implements the §4.2.1 predicate as written: true if any
// checkpoint_conditions predicate fires, or any auth_edge_case_detectors
// predicate fires, and checkpoints are enabled. The dispatcher evaluates the
// two halves separately (auth first, per the §4.2.4 ordering rule) and so
// does not call this combined form directly; it exists for callers that want
// the single should-I-pause-here answer without caring which half tripped.
func (h *CheckpointHandler) ShouldCheckpoint(tool ToolCall, snap NormalizedSnapshot, cfg *ServiceConfig) bool {
	if !h.checkpointsEnabled {
		return false
	}
	return h.CheckpointConditionsFire(tool, snap, cfg) || h.DetectAuthEdgeCase(snap, cfg) != ""
}

// CheckpointConditionsFire reports whether any irreversibility predicate
// fires for tool against snap, independent of auth detection.
func (h *CheckpointHandler) CheckpointConditionsFire(tool ToolCall, snap NormalizedSnapshot, cfg *ServiceConfig) bool {
	if !h.checkpointsEnabled {
		return false
	}
	for _, pred := range cfg.CheckpointConditions {
		if h.safeCheckpointPredicate(pred, tool, snap) {
			return true
		}
	}
	return false
}

// DetectAuthEdgeCase returns the first matching auth detector's kind, or ""
// if none match. Evaluated independently of checkpointsEnabled: auth walls
// are not a policy choice, they are a fact about the page.
func (h *CheckpointHandler) DetectAuthEdgeCase(snap NormalizedSnapshot, cfg *ServiceConfig) string {
	for _, detector := range cfg.AuthEdgeCaseDetectors {
		if h.safeSnapshotPredicate(detector.Predicate, snap) {
			return detector.Kind
		}
	}
	return ""
}

func (h *CheckpointHandler) safeCheckpointPredicate(pred CheckpointPredicate, tool ToolCall, snap NormalizedSnapshot) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("checkpoint predicate panicked; treating as false", "panic", r)
			result = false
		}
	}()
	return pred(tool, snap)
}

func (h *CheckpointHandler) safeSnapshotPredicate(pred SnapshotPredicate, snap NormalizedSnapshot) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("snapshot predicate panicked; treating as false", "panic", r)
			result = false
		}
	}()
	return pred(snap)
}

// WaitForAuthResolution displays the detected auth edge case and blocks on a
// single line of human input. It returns a freshly captured, parsed
// snapshot on continue, or an error wrapping CheckpointRejectedError if the
// human typed "abort".
func (h *CheckpointHandler) WaitForAuthResolution(ctx context.Context, kind string, snap NormalizedSnapshot, tool ToolCall) (NormalizedSnapshot, error) {
	prompt := fmt.Sprintf(
		"\n[auth required: %s]\n  URL:   %s\n  Title: %s\nResolve this in the visible browser, then press Enter to continue (or type \"abort\" to stop): ",
		kind, snap.URL, snap.Title,
	)
	response, err := h.human.Prompt(ctx, prompt)
	if err != nil {
		return NormalizedSnapshot{}, fmt.Errorf("task: reading auth-wall response: %w", err)
	}
	if strings.TrimSpace(strings.ToLower(response)) == "abort" {
		return NormalizedSnapshot{}, NewCheckpointRejectedError(tool)
	}

	raw, err := h.client.CallTool(ctx, "browser_snapshot", nil)
	if err != nil {
		return NormalizedSnapshot{}, fmt.Errorf("task: re-snapshotting after auth resolution: %w", err)
	}
	return ParseSnapshot(raw)
}

// RequestApproval captures a best-effort screenshot, displays the proposed
// action and snapshot excerpt, and accepts a single line of input. Any
// response whose lowercased form starts with "y" is an approval.
func (h *CheckpointHandler) RequestApproval(ctx context.Context, tool ToolCall, snap NormalizedSnapshot) bool {
	screenshotPath := h.captureScreenshot(ctx)

	excerpt := snap.Content
	if len(excerpt) > 300 {
		excerpt = excerpt[:300] + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n[approval required]\n  Tool:   %s\n  Args:   %v\n  URL:    %s\n  Title:  %s\n  Page:   %s\n",
		tool.Name, tool.Args, snap.URL, snap.Title, excerpt)
	if screenshotPath != "" {
		fmt.Fprintf(&b, "  Screenshot: %s\n", screenshotPath)
	}
	b.WriteString("Approve? [y/N]: ")

	response, err := h.human.Prompt(ctx, b.String())
	if err != nil {
		h.logger.Warn("failed to read approval response; treating as rejection", "error", err)
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return strings.HasPrefix(response, "y")
}

// captureScreenshot is best-effort: a failure here must not abort the run.
func (h *CheckpointHandler) captureScreenshot(ctx context.Context) string {
	result, err := h.client.CallTool(ctx, "browser_take_screenshot", nil)
	if err != nil {
		h.logger.Warn("screenshot capture failed; continuing without one", "error", err)
		return ""
	}
	path, err := writeScreenshotTemp(result)
	if err != nil {
		h.logger.Warn("failed to persist screenshot; continuing without one", "error", err)
		return ""
	}
	return path
}

func writeScreenshotTemp(data string) (string, error) {
	f, err := os.CreateTemp("", "subterminator-screenshot-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}
