// Package main provides the CLI entry point for SubTerminator.
//
// SubTerminator drives a browser, through an MCP browser-automation server,
// under LLM direction, to carry out an irreversible workflow -- canceling a
// subscription -- while gating destructive actions behind human approval.
//
// # Basic Usage
//
//	subterminator run --service netflix
//	subterminator doctor
//
// # Environment Variables
//
//   - SUBTERMINATOR_CONFIG: Path to configuration file (default: subterminator.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - SUBTERMINATOR_MODEL: Override the model used to drive the task loop
//   - SUBTERMINATOR_MCP_COMMAND: Override the MCP server launch command
//   - SUBTERMINATOR_PROFILE_DIR: Browser profile directory handed to the MCP server
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "subterminator",
		Short: "SubTerminator - AI-led subscription cancellation",
		Long: `SubTerminator drives a browser, through an MCP automation server, under
LLM direction, to cancel a subscription end to end.

Destructive actions are gated behind human approval by default; pass
--no-checkpoints only in a fully unattended, already-authorized run.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("SUBTERMINATOR_CONFIG"); env != "" {
		return env
	}
	return "subterminator.yaml"
}
