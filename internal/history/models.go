package history

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a generation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusBuilding   Status = "building"
	StatusSubmitted  Status = "submitted"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// InterruptedMessage is the error message set when processing records are
// failed because a previous run exited without finishing them.
const InterruptedMessage = "Interrupted before completion"

var allStatuses = []Status{
	StatusPending,
	StatusBuilding,
	StatusSubmitted,
	StatusGenerating,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusBuilding:   {},
	StatusSubmitted:  {},
	StatusGenerating: {},
}

// HealthSummary describes aggregated record counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// DatabaseHealth captures diagnostic information about the history database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}

// Record represents a generation persisted in SQLite.
type Record struct {
	ID              int64
	UUID            string
	Prompt          string
	NegativePrompt  string
	Status          Status
	ParamsJSON      string
	PromptID        string
	OutputFile      string
	ErrorMessage    string
	Classification  string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight generation.
func (r Record) IsProcessing() bool {
	return IsProcessingStatus(r.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight generation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the record has reached a final state.
func (r Record) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// MarkStarted records the moment work on the record began.
func (r *Record) MarkStarted() {
	if r.StartedAt == nil {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and
// ProgressMessage individually.
func (r *Record) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetCompleted marks the record as finished with the saved output file.
func (r *Record) SetCompleted(outputFile string) {
	r.Status = StatusCompleted
	r.OutputFile = outputFile
	r.ErrorMessage = ""
	r.SetProgress("Completed", "", 100)
	now := time.Now().UTC()
	r.FinishedAt = &now
}

// SetFailed marks the record as failed with the given error message and
// failure classification.
func (r *Record) SetFailed(message, classification string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.Classification = classification
	r.SetProgress("Failed", message, 0)
	now := time.Now().UTC()
	r.FinishedAt = &now
}

// SetCancelled marks the record as cancelled by the user.
func (r *Record) SetCancelled() {
	r.Status = StatusCancelled
	r.SetProgress("Cancelled", "", 0)
	now := time.Now().UTC()
	r.FinishedAt = &now
}
