package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammednabarawy/video-gen/internal/history"
)

var (
	ErrServer        = errors.New("server error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrResource      = errors.New("resource exhaustion")
	ErrEnvironment   = errors.New("environment fault")
	ErrSupervision   = errors.New("process supervision failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classification buckets a terminal failure into the recovery path the
// orchestrator takes. The zero value means no failure.
type Classification string

const (
	// ClassificationFatal marks parameter or configuration errors that no
	// retry can repair.
	ClassificationFatal Classification = "fatal"
	// ClassificationTransient marks connection-level faults worth one more
	// attempt after a short delay.
	ClassificationTransient Classification = "transient"
	// ClassificationResource marks out-of-memory failures that trigger the
	// low-memory downgrade path.
	ClassificationResource Classification = "resource"
	// ClassificationEnvironment marks host-specific server defects repaired
	// by a forced restart.
	ClassificationEnvironment Classification = "environment"
	// ClassificationServer marks every other server-reported failure; these
	// are surfaced without retry.
	ClassificationServer Classification = "server"
)

// Classify maps a tagged error to the classification that drives retry and
// recovery decisions.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return ClassificationFatal
	case errors.Is(err, ErrResource):
		return ClassificationResource
	case errors.Is(err, ErrEnvironment):
		return ClassificationEnvironment
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, ErrNotFound):
		return ClassificationTransient
	default:
		return ClassificationServer
	}
}

// FailureStatus maps a pipeline error to the history status that should be
// persisted after the run fails.
func FailureStatus(err error) history.Status {
	if errors.Is(err, context.Canceled) {
		return history.StatusCancelled
	}
	return history.StatusFailed
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
