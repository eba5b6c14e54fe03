package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services"
	"github.com/mohammednabarawy/video-gen/internal/testsupport"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("startup message")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "videogen.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "startup message") {
		t.Fatalf("expected log file to contain message, got %q", content)
	}
}

func TestConsoleHandlerFormatsComponentAndContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithGenerationID(context.Background(), "gen-42")
	ctx = services.WithAttempt(ctx, 2)
	scoped := logging.WithContext(ctx, logging.NewComponentLogger(logger, "orchestrator"))
	scoped.Info("submitting job", logging.String("prompt_id", "abc"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO orchestrator: submitting job") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "generation_id=gen-42") || !strings.Contains(line, "attempt=2") {
		t.Fatalf("expected context fields, got %q", line)
	}
	if !strings.Contains(line, "prompt_id=abc") {
		t.Fatalf("expected explicit attr, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug-level logs, got %q", content)
	}
}

func TestJSONFormatUsesCanonicalKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "warn",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("should be filtered")
	logger.Warn("disk low", logging.Int("free_gb", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single line, got %d: %q", len(lines), content)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &payload); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level key, got %v", payload["level"])
	}
	if payload["msg"] != "disk low" {
		t.Fatalf("unexpected message: %v", payload["msg"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestUnsupportedFormatFails(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsGuidanceFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "preview frame dropped", "preview_decode")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "event_type=preview_decode") {
		t.Fatalf("expected event_type injected, got %q", line)
	}
	if !strings.Contains(line, "error_hint=") || !strings.Contains(line, "impact=") {
		t.Fatalf("expected guidance fields injected, got %q", line)
	}
}

func TestNopLoggerStaysSilent(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should vanish", logging.Error(os.ErrNotExist))
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("expected nop logger to report disabled")
	}
}
