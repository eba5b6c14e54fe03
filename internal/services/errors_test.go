package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/history"
	"github.com/mohammednabarawy/video-gen/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrServer, "client", "submit", "rejected", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrServer) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"client", "submit", "rejected"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransientMarker(t *testing.T) {
	err := services.Wrap(nil, "client", "poll", "lost connection", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for nil marker, got %v", err)
	}
}

func TestClassifyMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect services.Classification
	}{
		{"validation", services.Wrap(services.ErrValidation, "orchestrator", "validate", "bad dims", nil), services.ClassificationFatal},
		{"configuration", services.Wrap(services.ErrConfiguration, "config", "load", "missing dir", nil), services.ClassificationFatal},
		{"resource", services.Wrap(services.ErrResource, "orchestrator", "monitor", "oom", nil), services.ClassificationResource},
		{"environment", services.Wrap(services.ErrEnvironment, "orchestrator", "monitor", "host defect", nil), services.ClassificationEnvironment},
		{"transient", services.Wrap(services.ErrTransient, "client", "submit", "refused", nil), services.ClassificationTransient},
		{"timeout", services.Wrap(services.ErrTimeout, "client", "await", "deadline", nil), services.ClassificationTransient},
		{"server", services.Wrap(services.ErrServer, "client", "monitor", "node failed", nil), services.ClassificationServer},
		{"untagged", errors.New("bare"), services.ClassificationServer},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.expect {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expect, got)
		}
	}
	if got := services.Classify(nil); got != "" {
		t.Fatalf("expected empty classification for nil error, got %s", got)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	serverErr := services.Wrap(services.ErrServer, "client", "monitor", "failed", errors.New("io"))
	if status := services.FailureStatus(serverErr); status != history.StatusFailed {
		t.Fatalf("expected failed for server error, got %s", status)
	}

	cancelErr := services.Wrap(services.ErrTransient, "orchestrator", "await", "cancelled", context.Canceled)
	if status := services.FailureStatus(cancelErr); status != history.StatusCancelled {
		t.Fatalf("expected cancelled for context cancellation, got %s", status)
	}

	if status := services.FailureStatus(nil); status != history.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}
