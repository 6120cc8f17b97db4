package task

import (
	"context"
	"errors"
	"testing"
)

func TestShouldCheckpointDisabledAlwaysFalse(t *testing.T) {
	h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{}, nil, false)
	cfg := NetflixServiceConfig()
	tool := ToolCall{Name: "browser_click", Args: map[string]any{"element": "Finish"}}
	snap := NormalizedSnapshot{Content: "finish cancel"}

	if h.ShouldCheckpoint(tool, snap, cfg) {
		t.Error("expected disabled checkpoints to never fire")
	}
}

func TestCheckpointConditionsFireOnDestructiveClick(t *testing.T) {
	h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{}, nil, true)
	cfg := NetflixServiceConfig()
	tool := ToolCall{Name: "browser_click", Args: map[string]any{"element": "Finish Cancellation"}}
	snap := NormalizedSnapshot{Content: "anything"}

	if !h.CheckpointConditionsFire(tool, snap, cfg) {
		t.Error("expected a destructive click to fire a checkpoint")
	}
}

func TestPredicatePanicIsTreatedAsFalse(t *testing.T) {
	h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{}, nil, true)
	cfg := &ServiceConfig{
		CheckpointConditions: []CheckpointPredicate{
			func(ToolCall, NormalizedSnapshot) bool { panic("boom") },
		},
	}

	if h.CheckpointConditionsFire(ToolCall{Name: "x"}, NormalizedSnapshot{}, cfg) {
		t.Error("expected a panicking predicate to be treated as false, not to crash or return true")
	}
}

func TestDetectAuthEdgeCaseReturnsKind(t *testing.T) {
	h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{}, nil, true)
	cfg := NetflixServiceConfig()
	snap := NormalizedSnapshot{Content: "Please enter the verification code sent to your phone"}

	if kind := h.DetectAuthEdgeCase(snap, cfg); kind != "mfa" {
		t.Errorf("expected kind %q, got %q", "mfa", kind)
	}
}

func TestWaitForAuthResolutionAbortReturnsCheckpointRejected(t *testing.T) {
	h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{responses: []string{"abort"}}, nil, true)
	_, err := h.WaitForAuthResolution(context.Background(), "login", NormalizedSnapshot{}, ToolCall{Name: "browser_click"})

	var rejected *CheckpointRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *CheckpointRejectedError, got %v", err)
	}
}

func TestRequestApprovalAcceptsYPrefixedResponses(t *testing.T) {
	for _, response := range []string{"y", "Y", "yes", "Yep"} {
		h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{responses: []string{response}}, nil, true)
		if !h.RequestApproval(context.Background(), ToolCall{Name: "browser_click"}, NormalizedSnapshot{}) {
			t.Errorf("expected response %q to approve", response)
		}
	}
}

func TestRequestApprovalRejectsEverythingElse(t *testing.T) {
	for _, response := range []string{"n", "no", "", "maybe"} {
		h := NewCheckpointHandler(newFakeMCPClient(), &scriptedHuman{responses: []string{response}}, nil, true)
		if h.RequestApproval(context.Background(), ToolCall{Name: "browser_click"}, NormalizedSnapshot{}) {
			t.Errorf("expected response %q to reject", response)
		}
	}
}
