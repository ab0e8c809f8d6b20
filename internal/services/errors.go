package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalTool marks failures reported by an external binary.
	ErrExternalTool = errors.New("external tool error")
	// ErrValidation marks failures caused by bad input or state.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks failures caused by operator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups that produced nothing.
	ErrNotFound = errors.New("not found")
	// ErrMissingDependency marks an absent required external binary. The
	// only error class allowed to abort daemon startup.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrInterrupted marks work cut short by cancellation.
	ErrInterrupted = errors.New("interrupted")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
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
