package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/haasonsaas/subterminator/internal/config"
	"github.com/haasonsaas/subterminator/internal/llm"
	"github.com/haasonsaas/subterminator/internal/mcp"
	"github.com/haasonsaas/subterminator/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// exitError carries a process exit code alongside the error cobra prints,
// so main can translate it without re-deriving the classification logic.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, err error) *exitError { return &exitError{code: code, err: err} }

// exitCodeFor maps a terminal error to the process exit code per the CLI
// exit code table: 0 success, 1 task-level failure, 2 configuration error,
// 3 unknown service, 5 MCP connection failure, 130 interrupted.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	var configErr *task.ConfigurationError
	if errors.As(err, &configErr) {
		return 2
	}
	var profileErr *task.ProfileLoadError
	if errors.As(err, &profileErr) {
		return 2
	}
	var notFound *task.ServiceNotFoundError
	if errors.As(err, &notFound) {
		return 3
	}
	var connErr *mcp.ConnectionError
	if errors.As(err, &connErr) {
		return 5
	}
	return 1
}

func buildRunCmd() *cobra.Command {
	var (
		configPath    string
		service       string
		maxTurns      int
		dryRun        bool
		noCheckpoints bool
		model         string
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cancellation task for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, runFlags{
				configPath:    resolveConfigPath(configPath),
				service:       service,
				maxTurns:      maxTurns,
				dryRun:        dryRun,
				noCheckpoints: noCheckpoints,
				model:         model,
				metricsAddr:   metricsAddr,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&service, "service", "", "Registered service to cancel (e.g. netflix)")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Override the maximum number of LLM turns (0 = use config default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Stop before the first mutating tool call and report what would run")
	cmd.Flags().BoolVar(&noCheckpoints, "no-checkpoints", false, "Disable human-approval checkpoints (unattended mode)")
	cmd.Flags().StringVar(&model, "model", "", "Override the configured LLM model")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464) for the duration of the run")
	cmd.MarkFlagRequired("service")

	return cmd
}

type runFlags struct {
	configPath    string
	service       string
	maxTurns      int
	dryRun        bool
	noCheckpoints bool
	model         string
	metricsAddr   string
}

func runTask(cmd *cobra.Command, flags runFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return newExitError(exitCodeFor(err), err)
	}

	model := cfg.LLM.Model
	if flags.model != "" {
		model = flags.model
	}
	llmClient, err := llm.NewClient(llm.Config{
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		Model:           model,
		Logger:          slog.Default(),
	})
	if err != nil {
		wrapped := task.NewConfigurationError(err)
		return newExitError(exitCodeFor(wrapped), wrapped)
	}

	serverCfg := &mcp.ServerConfig{
		Command:    cfg.MCP.Command,
		Args:       cfg.MCP.Args,
		Env:        cfg.MCP.Env,
		WorkDir:    cfg.MCP.WorkDir,
		ProfileDir: cfg.MCP.ProfileDir,
		Timeout:    cfg.MCP.Timeout,
	}

	maxTurns := cfg.Run.MaxTurns
	if flags.maxTurns > 0 {
		maxTurns = flags.maxTurns
	}
	var checkpointsOverride *bool
	if flags.noCheckpoints {
		disabled := false
		checkpointsOverride = &disabled
	}

	runner := task.NewRunner(task.DefaultRegistry(), llmClient, serverCfg, task.NewStdioHumanIO(), slog.Default())
	if flags.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		runner = runner.WithMetrics(task.NewMetrics(registry))
		stopMetrics := serveMetrics(flags.metricsAddr, registry)
		defer stopMetrics()
	}

	result, err := runner.Run(cmd.Context(), task.Options{
		ServiceName:        flags.service,
		MaxTurns:           maxTurns,
		DryRun:             flags.dryRun || cfg.Run.DryRun,
		CheckpointsEnabled: cfg.Run.CheckpointsEnabledOr(checkpointsOverride),
	})
	if err != nil {
		return newExitError(exitCodeFor(err), err)
	}

	return reportResult(cmd, result)
}

// serveMetrics starts a background HTTP server exposing reg on /metrics and
// returns a func that shuts it down. Serve errors other than a clean close
// are logged but never fail the run: metrics are an observability aid, not
// part of the cancellation task's success criteria.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().Warn("metrics server exited", "error", err)
		}
	}()

	return func() {
		if err := server.Close(); err != nil {
			slog.Default().Warn("failed to close metrics server", "error", err)
		}
	}
}

func reportResult(cmd *cobra.Command, result *task.TaskResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "service result: success=%v verified=%v reason=%s turns=%d final_url=%s\n",
		result.Success, result.Verified, result.Reason, result.Turns, result.FinalURL)
	if result.Error != "" {
		fmt.Fprintf(out, "detail: %s\n", result.Error)
	}

	if result.Reason == task.ReasonHumanRejected && result.Error == "interrupted by SIGINT" {
		return newExitError(130, errors.New("interrupted"))
	}
	if result.Success {
		return nil
	}
	if result.Reason == task.ReasonMCPError {
		return newExitError(5, fmt.Errorf("mcp error: %s", result.Error))
	}
	return newExitError(1, fmt.Errorf("task did not succeed: %s", result.Reason))
}
