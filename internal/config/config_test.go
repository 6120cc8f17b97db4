package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "subterminator.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "llm:\n  anthropic_api_key: sk-ant-test\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MCP.Command != "npx" {
		t.Errorf("expected default mcp command npx, got %q", cfg.MCP.Command)
	}
	if cfg.Run.MaxTurns != 40 {
		t.Errorf("expected default max_turns 40, got %d", cfg.Run.MaxTurns)
	}
	if cfg.Run.CheckpointsEnabled == nil || !*cfg.Run.CheckpointsEnabled {
		t.Error("expected checkpoints to default to enabled")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_ST_KEY", "sk-ant-from-env")
	path := writeTempConfig(t, "llm:\n  anthropic_api_key: ${TEST_ST_KEY}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-ant-from-env" {
		t.Errorf("expected expanded env var, got %q", cfg.LLM.AnthropicAPIKey)
	}
}

func TestLoadMissingAPIKeyFailsValidation(t *testing.T) {
	path := writeTempConfig(t, "mcp:\n  command: npx\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-override")
	t.Setenv("SUBTERMINATOR_MODEL", "claude-sonnet-4-20250514")
	path := writeTempConfig(t, "llm:\n  anthropic_api_key: sk-ant-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-ant-env-override" {
		t.Errorf("expected env var to win, got %q", cfg.LLM.AnthropicAPIKey)
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model override applied, got %q", cfg.LLM.Model)
	}
}

func TestLoadWithNoPathStillAppliesEnvAndDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-only")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-ant-env-only" {
		t.Errorf("expected env-only config to populate the API key, got %q", cfg.LLM.AnthropicAPIKey)
	}
	if cfg.MCP.Command != "npx" {
		t.Errorf("expected defaults to apply even with no file, got %q", cfg.MCP.Command)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, "llm:\n  anthropic_api_key: sk-ant-test\nbogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unrecognized top-level field")
	}
}

func TestLoadRejectsNegativeMaxTurns(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	path := writeTempConfig(t, "run:\n  max_turns: -1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a negative max_turns to fail validation")
	}
}

func TestCheckpointsEnabledOrHonorsOverride(t *testing.T) {
	enabled := true
	disabled := false
	cfg := RunConfig{CheckpointsEnabled: &enabled}
	if cfg.CheckpointsEnabledOr(&disabled) != false {
		t.Error("expected an explicit override to win over the configured value")
	}
	if !cfg.CheckpointsEnabledOr(nil) {
		t.Error("expected the configured value when no override is given")
	}
}
