package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faceomatic/internal/jobs"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later state classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureState maps a stage error to the job state the runner should move the
// job to after the stage fails:
//
//   - transient, timeout, and cancellation errors go back to Unprocessed for retry
//   - external tool and configuration errors stay Processing for an operator
//   - everything else, including malformed classifier responses, is Failed
func FailureState(err error) jobs.State {
	switch {
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, context.Canceled):
		return jobs.StateUnprocessed
	case errors.Is(err, ErrExternalTool), errors.Is(err, ErrConfiguration):
		return jobs.StateProcessing
	default:
		return jobs.StateFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
