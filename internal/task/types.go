// Package task implements the turn-based conversation loop that drives a
// browser, via an MCP server and under LLM direction, through one service's
// cancellation workflow to completion.
package task

// TaskReason names why a run terminated.
type TaskReason string

const (
	ReasonCompleted          TaskReason = "completed"
	ReasonHumanRejected      TaskReason = "human_rejected"
	ReasonMaxTurnsExceeded   TaskReason = "max_turns_exceeded"
	ReasonLLMNoAction        TaskReason = "llm_no_action"
	ReasonLLMError           TaskReason = "llm_error"
	ReasonMCPError           TaskReason = "mcp_error"
	ReasonVerificationFailed TaskReason = "verification_failed"
)

// TaskResult is the terminal outcome of one run() invocation.
//
// Invariant: Success implies Reason == ReasonCompleted and Verified == true.
type TaskResult struct {
	RunID    string
	Success  bool
	Verified bool
	Reason   TaskReason
	Turns    int
	FinalURL string
	Error    string
}

// ToolCall is a single tool invocation the LLM asked for in one turn.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// NormalizedSnapshot is the engine's sole view of page state: a frozen
// observation produced by parsing one browser_snapshot result. It is never
// mutated once created.
type NormalizedSnapshot struct {
	URL            string
	Title          string
	Content        string
	ScreenshotPath string
}

// ServiceConfig is per-service policy, immutable once registered.
type ServiceConfig struct {
	Name         string
	InitialURL   string
	GoalTemplate string

	// CheckpointConditions fire when the proposed tool against the current
	// snapshot is irreversible.
	CheckpointConditions []CheckpointPredicate
	// SuccessIndicators: any match means the task is verified successful.
	SuccessIndicators []SnapshotPredicate
	// FailureIndicators: any match overrides a success match.
	FailureIndicators []SnapshotPredicate
	// AuthEdgeCaseDetectors: any match means a human must intervene before
	// the proposed tool runs.
	AuthEdgeCaseDetectors []AuthDetector

	// SystemPromptAddition is appended to the base system prompt.
	SystemPromptAddition string
}

// CheckpointPredicate evaluates a proposed tool call against the current
// snapshot. Implementations must be pure and must not panic; callers treat a
// recovered panic as false.
type CheckpointPredicate func(tool ToolCall, snap NormalizedSnapshot) bool

// SnapshotPredicate evaluates the current snapshot alone.
type SnapshotPredicate func(snap NormalizedSnapshot) bool

// AuthDetector is a SnapshotPredicate that also names the kind of auth edge
// case it detects (login, captcha, mfa) for display to the human.
type AuthDetector struct {
	Kind      string
	Predicate SnapshotPredicate
}

// VirtualToolComplete and VirtualToolApproval name the two tools the engine
// intercepts rather than forwarding to the MCP server.
const (
	VirtualToolComplete = "complete_task"
	VirtualToolApproval = "request_human_approval"
)

// navigationClassTools capture-fresh-snapshot after execution.
var navigationClassTools = map[string]bool{
	"browser_navigate": true,
	"browser_click":    true,
	"browser_type":     true,
}

// readOnlyTools are exempt from dry-run short-circuiting.
var readOnlyTools = map[string]bool{
	"browser_snapshot":        true,
	"browser_take_screenshot": true,
}
