package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/subterminator/internal/mcp"
)

// dispatchOutcome is what one tool dispatch produces: either a terminal
// TaskResult (the run is over), or an observation to hand back to the LLM as
// a tool message, optionally alongside a refreshed snapshot and/or an extra
// user-role nudge message.
type dispatchOutcome struct {
	terminal         *TaskResult
	observation      string
	updatedSnapshot  *NormalizedSnapshot
	extraUserMessage string
}

// dispatchOutcomeLabel summarizes an outcome for metrics without exposing
// free-text error strings as a label value (which would blow up cardinality).
func dispatchOutcomeLabel(o dispatchOutcome) string {
	if o.terminal != nil {
		return "terminal:" + string(o.terminal.Reason)
	}
	return "continued"
}

// dispatch implements §4.1.1: route complete_task and request_human_approval
// to their virtual handlers, otherwise run the auth-then-checkpoint gate
// sequence before forwarding to MCP.
func (r *Runner) dispatch(ctx context.Context, client MCPClient, checkpoint *CheckpointHandler, cfg *ServiceConfig, snap NormalizedSnapshot, call ToolCall, opts Options) dispatchOutcome {
	logger := r.logger.With("tool", call.Name)

	switch call.Name {
	case VirtualToolComplete:
		return r.handleCompleteTask(ctx, client, cfg, snap, call)
	case VirtualToolApproval:
		return r.handleRequestApproval(ctx, checkpoint, snap, call)
	}

	// Step 1: auth edge case detection runs before irreversibility checks.
	if kind := checkpoint.DetectAuthEdgeCase(snap, cfg); kind != "" {
		fresh, err := checkpoint.WaitForAuthResolution(ctx, kind, snap, call)
		if err != nil {
			var rejected *CheckpointRejectedError
			if errors.As(err, &rejected) {
				return dispatchOutcome{terminal: &TaskResult{Reason: ReasonHumanRejected}}
			}
			return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: err.Error()}}
		}
		return dispatchOutcome{
			observation:      fmt.Sprintf("Auth was resolved by a human. The page may have changed; the requested %q action was not executed. Re-assess the new snapshot before proceeding.", call.Name),
			updatedSnapshot:  &fresh,
			extraUserMessage: formatSnapshotObservation(fresh, cfg.GoalTemplate),
		}
	}

	// Step 2: irreversibility checkpoint.
	if checkpoint.CheckpointConditionsFire(call, snap, cfg) {
		if !checkpoint.RequestApproval(ctx, call, snap) {
			return dispatchOutcome{terminal: &TaskResult{Reason: ReasonHumanRejected}}
		}
	}

	// Step 3: dry-run short-circuit for non-read-only tools.
	if opts.DryRun && !readOnlyTools[call.Name] {
		return dispatchOutcome{terminal: &TaskResult{
			Success: false,
			Reason:  ReasonCompleted,
			FinalURL: snap.URL,
			Error:    fmt.Sprintf("dry run: would have called %q with args %v", call.Name, call.Args),
		}}
	}

	// Step 4: call MCP.
	result, err := client.CallTool(ctx, call.Name, call.Args)
	if err != nil {
		var toolErr *mcp.ToolError
		if errors.As(err, &toolErr) {
			obsBytes, _ := json.Marshal(map[string]any{"error": true, "message": toolErr.Message})
			return dispatchOutcome{observation: string(obsBytes)}
		}

		var connErr *mcp.ConnectionError
		if errors.As(err, &connErr) {
			logger.Warn("mcp connection error; attempting one reconnect", "error", err)
			if reconnectErr := client.Reconnect(ctx); reconnectErr != nil {
				return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: reconnectErr.Error()}}
			}
			result, err = client.CallTool(ctx, call.Name, call.Args)
			if err != nil {
				return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: err.Error()}}
			}
		} else {
			return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: err.Error()}}
		}
	}

	// Step 5: navigation-class tools trigger a fresh snapshot. An explicit
	// browser_snapshot call already returned one; parse it directly rather
	// than issuing a second, redundant call.
	if call.Name == "browser_snapshot" {
		if fresh, perr := ParseSnapshot(result); perr == nil {
			return dispatchOutcome{observation: result, updatedSnapshot: &fresh}
		}
		return dispatchOutcome{observation: result}
	}
	if navigationClassTools[call.Name] {
		raw, err := client.CallTool(ctx, "browser_snapshot", nil)
		if err != nil {
			return dispatchOutcome{observation: result}
		}
		fresh, err := ParseSnapshot(raw)
		if err != nil {
			return dispatchOutcome{observation: result}
		}
		// The raw tool result (e.g. a click acknowledgement) and the fresh
		// snapshot it produced are both handed to the LLM: the tool message
		// carries the former, extraUserMessage carries the latter, per the
		// snapshot-as-observation invariant.
		return dispatchOutcome{
			observation:      result,
			updatedSnapshot:  &fresh,
			extraUserMessage: formatSnapshotObservation(fresh, cfg.GoalTemplate),
		}
	}

	return dispatchOutcome{observation: result}
}

// handleCompleteTask implements §4.1.2.
func (r *Runner) handleCompleteTask(ctx context.Context, client MCPClient, cfg *ServiceConfig, snap NormalizedSnapshot, call ToolCall) dispatchOutcome {
	status, _ := call.Args["status"].(string)
	reason, _ := call.Args["reason"].(string)

	if status == "failed" {
		return dispatchOutcome{terminal: &TaskResult{
			Success: false,
			Verified: false,
			Reason:   ReasonVerificationFailed,
			FinalURL: snap.URL,
			Error:    reason,
		}}
	}

	raw, err := client.CallTool(ctx, "browser_snapshot", nil)
	if err != nil {
		return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: err.Error()}}
	}
	fresh, err := ParseSnapshot(raw)
	if err != nil {
		return dispatchOutcome{terminal: &TaskResult{Reason: ReasonMCPError, Error: err.Error()}}
	}

	if evaluateAny(cfg.FailureIndicators, fresh) {
		return dispatchOutcome{
			terminal: &TaskResult{Success: false, Verified: false, Reason: ReasonVerificationFailed, FinalURL: fresh.URL},
		}
	}
	if evaluateAny(cfg.SuccessIndicators, fresh) {
		return dispatchOutcome{
			terminal: &TaskResult{Success: true, Verified: true, Reason: ReasonCompleted, FinalURL: fresh.URL},
		}
	}

	return dispatchOutcome{
		observation:      "Verification did not find a success indicator on the current page. Re-examine the snapshot and continue, or call complete_task(failed) if the task truly cannot be completed.",
		updatedSnapshot:  &fresh,
		extraUserMessage: formatSnapshotObservation(fresh, cfg.GoalTemplate),
	}
}

// handleRequestApproval implements §4.1.3: a rejected LLM-requested approval
// is not terminal, unlike a rejected server-enforced checkpoint.
func (r *Runner) handleRequestApproval(ctx context.Context, checkpoint *CheckpointHandler, snap NormalizedSnapshot, call ToolCall) dispatchOutcome {
	action, _ := call.Args["action"].(string)
	approved := checkpoint.RequestApproval(ctx, ToolCall{Name: action, Args: call.Args}, snap)

	obsBytes, _ := json.Marshal(map[string]any{"approved": approved})
	return dispatchOutcome{observation: string(obsBytes)}
}

func evaluateAny(predicates []SnapshotPredicate, snap NormalizedSnapshot) (matched bool) {
	for _, pred := range predicates {
		if safeEvaluate(pred, snap) {
			return true
		}
	}
	return false
}

func safeEvaluate(pred SnapshotPredicate, snap NormalizedSnapshot) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("indicator predicate panicked; treating as false", "panic", r)
			result = false
		}
	}()
	return pred(snap)
}
