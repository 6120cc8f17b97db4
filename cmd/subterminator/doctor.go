package main

import (
	"fmt"
	"os/exec"

	"github.com/haasonsaas/subterminator/internal/config"
	"github.com/haasonsaas/subterminator/internal/mcp"
	"github.com/haasonsaas/subterminator/internal/task"
	"github.com/spf13/cobra"
)

// buildDoctorCmd creates the "doctor" command, which runs the preflight
// checks a run would otherwise fail on partway through: a supported Node.js
// runtime, an LLM API key, and the configured MCP command resolving on PATH.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a run would have everything it needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

type doctorCheck struct {
	name string
	err  error
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	checks := []doctorCheck{checkNode()}

	cfg, cfgErr := config.Load(configPath)
	if cfgErr != nil {
		checks = append(checks, doctorCheck{name: "configuration", err: cfgErr})
	} else {
		checks = append(checks, doctorCheck{name: "configuration", err: nil})
		checks = append(checks, checkMCPCommand(cfg.MCP.Command))
	}

	failed := false
	for _, check := range checks {
		status := "ok"
		if check.err != nil {
			status = "FAIL"
			failed = true
		}
		fmt.Fprintf(out, "[%s] %s\n", status, check.name)
		if check.err != nil {
			fmt.Fprintf(out, "        %s\n", check.err)
		}
	}

	if failed {
		return newExitError(2, task.NewConfigurationError(fmt.Errorf("one or more doctor checks failed")))
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}

func checkNode() doctorCheck {
	return doctorCheck{name: "node.js runtime", err: mcp.CheckNodeRuntime()}
}

func checkMCPCommand(command string) doctorCheck {
	if command == "" {
		return doctorCheck{name: "mcp command", err: fmt.Errorf("mcp.command is not configured")}
	}
	if _, err := exec.LookPath(command); err != nil {
		return doctorCheck{name: "mcp command", err: fmt.Errorf("%q not found on PATH: %w", command, err)}
	}
	return doctorCheck{name: "mcp command", err: nil}
}
