package comfyui_test

import (
	"encoding/json"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
)

func TestEventPayloadDecoding(t *testing.T) {
	progress := comfyui.Event{
		Kind: comfyui.EventProgress,
		Data: json.RawMessage(`{"value":12,"max":50,"prompt_id":"job-1"}`),
	}
	update, ok := progress.Progress()
	if !ok {
		t.Fatal("expected progress payload to decode")
	}
	if update.Value != 12 || update.Max != 50 || update.PromptID != "job-1" {
		t.Fatalf("unexpected progress: %+v", update)
	}
	if _, ok := progress.Executing(); ok {
		t.Fatal("progress event must not decode as executing")
	}

	executing := comfyui.Event{
		Kind: comfyui.EventExecuting,
		Data: json.RawMessage(`{"node":"11","prompt_id":"job-1"}`),
	}
	step, ok := executing.Executing()
	if !ok {
		t.Fatal("expected executing payload to decode")
	}
	if step.Node != "11" {
		t.Fatalf("unexpected node: %+v", step)
	}

	// The final frame of a job carries a null node.
	finished := comfyui.Event{
		Kind: comfyui.EventExecuting,
		Data: json.RawMessage(`{"node":null,"prompt_id":"job-1"}`),
	}
	last, ok := finished.Executing()
	if !ok {
		t.Fatal("expected final executing payload to decode")
	}
	if last.Node != "" {
		t.Fatalf("expected empty node on final frame, got %q", last.Node)
	}

	failure := comfyui.Event{
		Kind: comfyui.EventExecutionError,
		Data: json.RawMessage(`{"prompt_id":"job-1","node_id":"7","node_type":"KSampler","exception_type":"RuntimeError","exception_message":"shape mismatch"}`),
	}
	decoded, ok := failure.Failure()
	if !ok {
		t.Fatal("expected failure payload to decode")
	}
	if decoded.NodeID != "7" || decoded.Type != "RuntimeError" {
		t.Fatalf("unexpected failure: %+v", decoded)
	}
	if got := failure.PromptID(); got != "job-1" {
		t.Fatalf("unexpected prompt id: %q", got)
	}
}

func TestProgressPercentClamps(t *testing.T) {
	cases := []struct {
		name   string
		update comfyui.ProgressUpdate
		want   float64
	}{
		{"halfway", comfyui.ProgressUpdate{Value: 25, Max: 50}, 50},
		{"overshoot", comfyui.ProgressUpdate{Value: 60, Max: 50}, 100},
		{"zero max", comfyui.ProgressUpdate{Value: 10, Max: 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.update.Percent(); got != tc.want {
				t.Fatalf("expected %.0f, got %.2f", tc.want, got)
			}
		})
	}
}

func TestExecutionFailureMatching(t *testing.T) {
	failure := comfyui.ExecutionFailure{
		Type:    "torch.OutOfMemoryError",
		Message: "CUDA out of memory. Tried to allocate 2.50 GiB",
	}
	if !failure.Matches([]string{"cuda out of memory", "allocation failed"}) {
		t.Fatal("expected case-insensitive trigger match")
	}
	if !failure.Matches([]string{"OutOfMemoryError"}) {
		t.Fatal("expected match against exception type")
	}
	if failure.Matches([]string{"no such file"}) {
		t.Fatal("unexpected match")
	}
	if failure.Matches(nil) {
		t.Fatal("empty trigger list must not match")
	}
	if failure.Matches([]string{"  "}) {
		t.Fatal("blank trigger must not match")
	}
}

func TestExecutionFailureString(t *testing.T) {
	full := comfyui.ExecutionFailure{Type: "RuntimeError", Message: "shape mismatch"}
	if got := full.String(); got != "RuntimeError: shape mismatch" {
		t.Fatalf("unexpected text: %q", got)
	}
	messageOnly := comfyui.ExecutionFailure{Message: "device lost"}
	if got := messageOnly.String(); got != "device lost" {
		t.Fatalf("unexpected text: %q", got)
	}
	empty := comfyui.ExecutionFailure{}
	if got := empty.String(); got != "execution failed" {
		t.Fatalf("unexpected text: %q", got)
	}
}
