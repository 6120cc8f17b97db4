package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/haasonsaas/subterminator/internal/llm"
	"github.com/haasonsaas/subterminator/internal/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Options configures a single Run invocation.
type Options struct {
	ServiceName        string
	MaxTurns           int
	DryRun             bool
	CheckpointsEnabled bool
}

// Runner owns the turn loop and all terminal decisions for one invocation.
// It is stateless across runs: every field is a shared, reusable dependency,
// and Run itself is concurrency-safe to call repeatedly (never concurrently
// against the same MCP profile directory, which nothing here detects).
type Runner struct {
	registry  *ServiceRegistry
	llmClient LLMInvoker
	serverCfg *mcp.ServerConfig
	human     HumanIO
	logger    *slog.Logger
	metrics   *Metrics
}

// LLMInvoker is the slice of *llm.Client the runner depends on. Declaring it
// here, rather than taking *llm.Client directly, lets tests drive the turn
// loop with a scripted sequence of assistant messages instead of a real
// provider.
type LLMInvoker interface {
	Invoke(ctx context.Context, messages []llm.Message, tools []llm.Tool, system string) (*llm.AssistantMessage, error)
}

// MCPClient is the slice of *mcp.Client the runner and checkpoint handler
// depend on. Declaring it here lets tests drive dispatch logic against a
// scripted fake instead of a real subprocess.
type MCPClient interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
	Reconnect(ctx context.Context) error
}

// NewRunner builds a Runner from its dependencies.
func NewRunner(registry *ServiceRegistry, llmClient LLMInvoker, serverCfg *mcp.ServerConfig, human HumanIO, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if human == nil {
		human = NewStdioHumanIO()
	}
	return &Runner{
		registry:  registry,
		llmClient: llmClient,
		serverCfg: serverCfg,
		human:     human,
		logger:    logger.With("component", "task_runner"),
	}
}

// WithMetrics attaches a Metrics handle, returning the same Runner for
// chaining. A nil Runner metrics field (the default) disables instrumentation
// without any nil checks at call sites; see Metrics' nil-receiver methods.
func (r *Runner) WithMetrics(m *Metrics) *Runner {
	r.metrics = m
	return r
}

// virtualToolSchemas is injected into every tool catalog offered to the LLM.
var virtualToolSchemas = []llm.Tool{
	{
		Name:        VirtualToolComplete,
		Description: "Declare the task finished, successfully or not. The engine independently verifies success claims against the current page.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["success", "failed"]},
				"reason": {"type": "string"}
			},
			"required": ["status", "reason"]
		}`),
	},
	{
		Name:        VirtualToolApproval,
		Description: "Ask a human to approve a proposed action before taking it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {"type": "string"},
				"reason": {"type": "string"}
			},
			"required": ["action", "reason"]
		}`),
	},
}

// Run resolves service_name, connects the MCP client, and runs the turn
// loop to completion. It returns a non-nil error only for setup failures
// that precede the loop (ServiceNotFoundError, *mcp.ConnectionError); once
// the loop starts, every outcome is expressed as a TaskResult.
func (r *Runner) Run(ctx context.Context, opts Options) (*TaskResult, error) {
	if err := validateVirtualToolSchemas(); err != nil {
		return nil, NewConfigurationError(err)
	}
	cfg, err := r.registry.Get(opts.ServiceName)
	if err != nil {
		return nil, err
	}
	if opts.MaxTurns < 1 {
		opts.MaxTurns = 1
	}
	if err := ensureProfileDir(r.serverCfg.ProfileDir); err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	logger := r.logger.With("run_id", runID)

	var result *TaskResult
	connectErr := mcp.WithClient(ctx, r.serverCfg, logger, func(client *mcp.Client) error {
		result = r.runLoop(ctx, client, cfg, opts, logger)
		return nil
	})
	if connectErr != nil {
		return nil, connectErr
	}
	result.RunID = runID
	return result, nil
}

// validateVirtualToolSchemas compiles each virtual tool's JSON Schema once
// so a typo in a literal schema fails a run immediately, as a
// ConfigurationError, rather than confusing the LLM at turn 1.
func validateVirtualToolSchemas() error {
	for _, t := range virtualToolSchemas {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(t.Name, strings.NewReader(string(t.InputSchema))); err != nil {
			return fmt.Errorf("virtual tool %q: %w", t.Name, err)
		}
		if _, err := compiler.Compile(t.Name); err != nil {
			return fmt.Errorf("virtual tool %q: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Runner) runLoop(ctx context.Context, client MCPClient, cfg *ServiceConfig, opts Options, baseLogger *slog.Logger) (result *TaskResult) {
	defer func() {
		if result != nil {
			r.metrics.observeTerminal(result.Reason)
		}
	}()

	logger := baseLogger.With("service", cfg.Name)
	checkpoint := NewCheckpointHandler(client, r.human, logger, opts.CheckpointsEnabled)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var interrupted atomic.Bool
	go func() {
		select {
		case <-sigCh:
			interrupted.Store(true)
			cancel()
		case <-runCtx.Done():
		}
	}()
	// An interrupt cancels runCtx, so the LLM, MCP or prompt call in flight
	// fails first; the run is reported as interrupted, not as that failure.
	defer func() {
		if interrupted.Load() && result != nil && !result.Success {
			result = &TaskResult{Reason: ReasonHumanRejected, Turns: result.Turns, FinalURL: result.FinalURL, Error: "interrupted by SIGINT"}
		}
	}()

	mcpTools, err := client.ListTools(runCtx)
	if err != nil {
		return &TaskResult{Reason: ReasonMCPError, Error: err.Error()}
	}
	catalog := buildToolCatalog(mcpTools)

	if _, err := client.CallTool(runCtx, "browser_navigate", map[string]any{"url": cfg.InitialURL}); err != nil {
		return &TaskResult{Reason: ReasonMCPError, Error: err.Error()}
	}
	raw, err := client.CallTool(runCtx, "browser_snapshot", nil)
	if err != nil {
		return &TaskResult{Reason: ReasonMCPError, Error: err.Error()}
	}
	snap, err := ParseSnapshot(raw)
	if err != nil {
		return &TaskResult{Reason: ReasonMCPError, Error: err.Error()}
	}

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(cfg)},
		{Role: llm.RoleUser, Content: formatSnapshotObservation(snap, cfg.GoalTemplate)},
	}

	noActionCount := 0
	turn := 0

	for turn < opts.MaxTurns {
		if interrupted.Load() {
			return &TaskResult{Reason: ReasonHumanRejected, Turns: turn, FinalURL: snap.URL, Error: "interrupted by SIGINT"}
		}
		turn++
		r.metrics.observeTurn()

		assistant, err := r.llmClient.Invoke(runCtx, history, catalog, "")
		if err != nil {
			return &TaskResult{Reason: ReasonLLMError, Turns: turn, FinalURL: snap.URL, Error: err.Error()}
		}

		history = append(history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   assistant.Content,
			ToolCalls: assistant.ToolCalls,
		})

		if len(assistant.ToolCalls) == 0 {
			noActionCount++
			history = append(history, llm.Message{Role: llm.RoleUser, Content: "Call a tool or complete_task."})
			if noActionCount >= 3 {
				return &TaskResult{Reason: ReasonLLMNoAction, Turns: turn, FinalURL: snap.URL}
			}
			continue
		}
		noActionCount = 0

		if len(assistant.ToolCalls) > 1 {
			logger.Warn("assistant requested multiple tools in one turn; discarding all but the first",
				"executed", assistant.ToolCalls[0].Name, "discarded_count", len(assistant.ToolCalls)-1)
		}
		call := fromLLMToolCall(assistant.ToolCalls[0])

		outcome := r.dispatch(runCtx, client, checkpoint, cfg, snap, call, opts)
		r.metrics.observeDispatch(call.Name, dispatchOutcomeLabel(outcome))
		if outcome.terminal != nil {
			outcome.terminal.Turns = turn
			if outcome.terminal.FinalURL == "" {
				outcome.terminal.FinalURL = snap.URL
			}
			return outcome.terminal
		}
		if outcome.updatedSnapshot != nil {
			snap = *outcome.updatedSnapshot
		}

		history = append(history, llm.Message{Role: llm.RoleTool, Content: outcome.observation, ToolCallID: call.ID})
		if outcome.extraUserMessage != "" {
			history = append(history, llm.Message{Role: llm.RoleUser, Content: outcome.extraUserMessage})
		}
	}

	return &TaskResult{Reason: ReasonMaxTurnsExceeded, Turns: turn, FinalURL: snap.URL}
}

// ensureProfileDir creates dir if it does not already exist and confirms it
// is writable, so a bad profile path fails fast as a ProfileLoadError before
// the MCP subprocess is ever launched with it as a --profile argument. An
// empty dir (no profile persistence requested) is not an error.
func ensureProfileDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return NewProfileLoadError(dir, err)
	}
	probe := filepath.Join(dir, ".subterminator-write-test")
	f, err := os.Create(probe)
	if err != nil {
		return NewProfileLoadError(dir, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

func fromLLMToolCall(tc llm.ToolCall) ToolCall {
	return ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}
}

func buildToolCatalog(mcpTools []*mcp.Tool) []llm.Tool {
	catalog := make([]llm.Tool, 0, len(mcpTools)+len(virtualToolSchemas))
	for _, t := range mcpTools {
		catalog = append(catalog, llm.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	catalog = append(catalog, virtualToolSchemas...)
	return catalog
}

func buildSystemPrompt(cfg *ServiceConfig) string {
	var b strings.Builder
	b.WriteString("You are an automation agent completing a single task in a real web browser. " +
		"You see the page only through the snapshot you are given; you act only by calling one tool per turn. " +
		"Never call more than one tool in a single turn. When you believe the task is finished, call complete_task " +
		"with status=success only if the page confirms it, or status=failed if it cannot be completed. " +
		"If you are unsure whether an action is safe to take, call request_human_approval first.")
	if cfg.SystemPromptAddition != "" {
		b.WriteString("\n\n")
		b.WriteString(cfg.SystemPromptAddition)
	}
	return b.String()
}

func formatSnapshotObservation(snap NormalizedSnapshot, goal string) string {
	return fmt.Sprintf("Goal: %s\n\nPage URL: %s\nPage Title: %s\n\n%s", goal, snap.URL, snap.Title, snap.Content)
}
