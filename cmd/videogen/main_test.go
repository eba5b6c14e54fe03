package main

import (
	"testing"
)

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "videogen "+appVersion)
}

func TestRootShowsHelpWithoutArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, nil, env.configPath)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	requireContains(t, out, "Usage:")
	requireContains(t, out, "generate")
	requireContains(t, out, "history")
}
