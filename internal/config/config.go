// Package config loads and validates SubTerminator's configuration file and
// the environment variable overrides layered on top of it.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/subterminator/internal/task"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SubTerminator.
type Config struct {
	LLM LLMConfig `yaml:"llm"`
	MCP MCPConfig `yaml:"mcp"`
	Run RunConfig `yaml:"run"`
}

// LLMConfig selects and authenticates the model that drives the task loop.
type LLMConfig struct {
	Model           string `yaml:"model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
}

// MCPConfig describes how to launch the browser-automation MCP server.
type MCPConfig struct {
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	WorkDir    string            `yaml:"work_dir"`
	ProfileDir string            `yaml:"profile_dir"`
	Timeout    time.Duration     `yaml:"timeout"`
}

// RunConfig holds the default task-loop behavior, overridable per-invocation
// by CLI flags.
type RunConfig struct {
	Service            string `yaml:"service"`
	MaxTurns           int    `yaml:"max_turns"`
	DryRun             bool   `yaml:"dry_run"`
	CheckpointsEnabled *bool  `yaml:"checkpoints_enabled"`
}

// Load reads a YAML configuration file, expands environment variables in its
// body, layers environment variable overrides on top, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, task.NewConfigurationError(fmt.Errorf("read config file: %w", err))
		}
		expanded := os.ExpandEnv(string(data))
		decoder := yaml.NewDecoder(strings.NewReader(expanded))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, task.NewConfigurationError(fmt.Errorf("parse config file: %w", err))
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, task.NewConfigurationError(fmt.Errorf("parse config file: expected a single document"))
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		cfg.LLM.AnthropicAPIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		cfg.LLM.OpenAIAPIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("SUBTERMINATOR_MODEL")); value != "" {
		cfg.LLM.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("SUBTERMINATOR_MCP_COMMAND")); value != "" {
		cfg.MCP.Command = value
	}
	if value := strings.TrimSpace(os.Getenv("SUBTERMINATOR_PROFILE_DIR")); value != "" {
		cfg.MCP.ProfileDir = value
	}
	if value := strings.TrimSpace(os.Getenv("SUBTERMINATOR_MAX_TURNS")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Run.MaxTurns = parsed
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.MCP.Command == "" {
		cfg.MCP.Command = "npx"
	}
	if len(cfg.MCP.Args) == 0 && cfg.MCP.Command == "npx" {
		cfg.MCP.Args = []string{"-y", "@playwright/mcp@latest"}
	}
	if cfg.MCP.Timeout == 0 {
		cfg.MCP.Timeout = 30 * time.Second
	}
	if cfg.Run.MaxTurns == 0 {
		cfg.Run.MaxTurns = 40
	}
	if cfg.Run.CheckpointsEnabled == nil {
		enabled := true
		cfg.Run.CheckpointsEnabled = &enabled
	}
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.LLM.AnthropicAPIKey == "" && cfg.LLM.OpenAIAPIKey == "" {
		issues = append(issues, "llm: at least one of anthropic_api_key or openai_api_key (or their environment variables) must be set")
	}
	if cfg.MCP.Command == "" {
		issues = append(issues, "mcp.command is required")
	}
	if cfg.Run.MaxTurns < 1 {
		issues = append(issues, "run.max_turns must be >= 1")
	}

	if len(issues) == 0 {
		return nil
	}
	return task.NewConfigurationError(&ValidationError{Issues: issues})
}

// ValidationError reports every configuration problem found in one pass,
// rather than stopping at the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// CheckpointsEnabledOr resolves the effective checkpoint setting, honoring an
// explicit CLI override when present.
func (cfg *RunConfig) CheckpointsEnabledOr(override *bool) bool {
	if override != nil {
		return *override
	}
	if cfg.CheckpointsEnabled != nil {
		return *cfg.CheckpointsEnabled
	}
	return true
}
