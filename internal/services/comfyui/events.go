package comfyui

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind identifies one kind of server-pushed event.
type EventKind string

// Event kinds delivered over the stream. The server also emits queue
// bookkeeping frames (type "status"); those are dropped before dispatch.
const (
	EventProgress         EventKind = "progress"
	EventPreview          EventKind = "preview"
	EventExecutionStart   EventKind = "execution_start"
	EventExecutionCached  EventKind = "execution_cached"
	EventExecuting        EventKind = "executing"
	EventExecutionSuccess EventKind = "execution_success"
	EventExecutionError   EventKind = "execution_error"
)

// Event is one demultiplexed push from the server stream. Text frames carry
// their JSON payload in Data; binary preview frames carry decoded image
// bytes in Preview.
type Event struct {
	Kind    EventKind
	Data    json.RawMessage
	Preview *Preview
}

// Preview is a decoded binary preview frame.
type Preview struct {
	Data   []byte
	Format string
}

// ProgressUpdate reports sampling progress for the running job.
type ProgressUpdate struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
}

// Percent returns progress as a percentage, clamped to [0, 100].
func (p ProgressUpdate) Percent() float64 {
	if p.Max <= 0 {
		return 0
	}
	percent := float64(p.Value) / float64(p.Max) * 100
	if percent > 100 {
		return 100
	}
	return percent
}

// ExecutingUpdate reports the node the server is currently running. Node is
// empty on the final frame of a job.
type ExecutingUpdate struct {
	Node     string `json:"node"`
	PromptID string `json:"prompt_id"`
}

// ExecutionFailure carries the server's failure report for a job.
type ExecutionFailure struct {
	PromptID string `json:"prompt_id"`
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Type     string `json:"exception_type"`
	Message  string `json:"exception_message"`
}

func (f ExecutionFailure) String() string {
	switch {
	case f.Type != "" && f.Message != "":
		return fmt.Sprintf("%s: %s", f.Type, f.Message)
	case f.Message != "":
		return f.Message
	case f.Type != "":
		return f.Type
	default:
		return "execution failed"
	}
}

// Matches reports whether any trigger substring occurs in the failure text.
// Matching is case-insensitive because server builds differ in casing.
func (f ExecutionFailure) Matches(triggers []string) bool {
	text := strings.ToLower(f.Type + " " + f.Message)
	for _, trigger := range triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger != "" && strings.Contains(text, trigger) {
			return true
		}
	}
	return false
}

// Progress decodes the payload of a progress event.
func (e Event) Progress() (ProgressUpdate, bool) {
	if e.Kind != EventProgress {
		return ProgressUpdate{}, false
	}
	var update ProgressUpdate
	if err := json.Unmarshal(e.Data, &update); err != nil {
		return ProgressUpdate{}, false
	}
	return update, true
}

// Executing decodes the payload of an executing event.
func (e Event) Executing() (ExecutingUpdate, bool) {
	if e.Kind != EventExecuting {
		return ExecutingUpdate{}, false
	}
	var update ExecutingUpdate
	if err := json.Unmarshal(e.Data, &update); err != nil {
		return ExecutingUpdate{}, false
	}
	return update, true
}

// Failure decodes the payload of an execution_error event.
func (e Event) Failure() (ExecutionFailure, bool) {
	if e.Kind != EventExecutionError {
		return ExecutionFailure{}, false
	}
	var failure ExecutionFailure
	if err := json.Unmarshal(e.Data, &failure); err != nil {
		return ExecutionFailure{}, false
	}
	return failure, true
}

// PromptID extracts the job identifier common to most event payloads.
func (e Event) PromptID() string {
	var payload struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return ""
	}
	return payload.PromptID
}

const previewFormatJPEG = 1

// decodeBinaryFrame splits a binary stream frame into its event category and
// preview payload. The header is two big-endian words: an event category and
// an image format selector. Frames without a payload are rejected.
func decodeBinaryFrame(frame []byte) (uint32, Preview, bool) {
	if len(frame) <= 8 {
		return 0, Preview{}, false
	}
	category := binary.BigEndian.Uint32(frame[0:4])
	format := "png"
	if binary.BigEndian.Uint32(frame[4:8]) == previewFormatJPEG {
		format = "jpeg"
	}
	return category, Preview{Data: frame[8:], Format: format}, true
}
