package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/models"
	"github.com/mohammednabarawy/video-gen/internal/testsupport"
)

func TestModelsCommandWithoutRoot(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"models"}, env.configPath)
	if err == nil {
		t.Fatal("expected error without a models root")
	}
	requireContains(t, err.Error(), "models directory not configured")
}

func TestModelsCommandReportsMissing(t *testing.T) {
	installDir := t.TempDir()
	env := setupCLITestEnv(t, testsupport.WithInstallDir(installDir))

	out, _, err := runCLI(t, []string{"models"}, env.configPath)
	if err == nil {
		t.Fatal("expected error while required models are missing")
	}
	requireContains(t, err.Error(), "required model files missing")
	requireContains(t, out, "Models root:")
	for _, file := range models.Manifest() {
		requireContains(t, out, file.Name)
	}
}

func TestModelsCommandJSONReady(t *testing.T) {
	installDir := t.TempDir()
	modelsRoot := filepath.Join(installDir, "models")
	for _, file := range models.Manifest() {
		if !file.Required {
			continue
		}
		testsupport.WriteFile(t, filepath.Join(modelsRoot, file.Category, file.Name), 64)
	}
	env := setupCLITestEnv(t, testsupport.WithInstallDir(installDir))

	out, _, err := runCLI(t, []string{"models", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("models --json: %v", err)
	}
	var payload struct {
		ModelsRoot string `json:"models_root"`
		Ready      bool   `json:"ready"`
		Files      []struct {
			Name     string `json:"name"`
			Required bool   `json:"required"`
			Present  bool   `json:"present"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode models output: %v\n%s", err, out)
	}
	if !payload.Ready {
		t.Fatalf("expected ready with all required files present: %s", out)
	}
	if payload.ModelsRoot != modelsRoot {
		t.Fatalf("unexpected models root %q, want %q", payload.ModelsRoot, modelsRoot)
	}
	if len(payload.Files) != len(models.Manifest()) {
		t.Fatalf("expected %d files, got %d", len(models.Manifest()), len(payload.Files))
	}
	for _, file := range payload.Files {
		if file.Required && !file.Present {
			t.Fatalf("required file %s reported missing", file.Name)
		}
	}
}
