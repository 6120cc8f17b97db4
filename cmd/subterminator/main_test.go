package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"run", "doctor"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPathDefaultsWhenEmpty(t *testing.T) {
	t.Setenv("SUBTERMINATOR_CONFIG", "")
	if got := resolveConfigPath(""); got != "subterminator.yaml" {
		t.Errorf("expected default config path, got %q", got)
	}
}

func TestResolveConfigPathPrefersFlagOverEnv(t *testing.T) {
	t.Setenv("SUBTERMINATOR_CONFIG", "/from/env.yaml")
	if got := resolveConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Errorf("expected flag to win, got %q", got)
	}
}

func TestResolveConfigPathFallsBackToEnv(t *testing.T) {
	t.Setenv("SUBTERMINATOR_CONFIG", "/from/env.yaml")
	if got := resolveConfigPath(""); got != "/from/env.yaml" {
		t.Errorf("expected env var fallback, got %q", got)
	}
}

func TestExitCodeForKnownErrorTypes(t *testing.T) {
	if got := exitCodeFor(nil); got != 0 {
		t.Errorf("expected 0 for nil error, got %d", got)
	}
	if got := exitCodeFor(newExitError(130, errTest)); got != 130 {
		t.Errorf("expected exitError code to pass through, got %d", got)
	}
	if got := exitCodeFor(errTest); got != 1 {
		t.Errorf("expected unclassified errors to map to exit 1, got %d", got)
	}
}

var errTest = testError("boom")

type testError string

func (e testError) Error() string { return string(e) }
