package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
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

// Retryable reports whether another attempt at the same item could succeed.
// Unreadable input and invalid configuration are permanent; everything else,
// including unmarked errors, is worth another try.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrValidation) && !errors.Is(err, ErrExternalTool):
		return false
	default:
		return true
	}
}

// Hint returns a short operator-facing suggestion for err.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "run interrupted; the item stays pending"
	case errors.Is(err, ErrNotFound):
		return "check the file still exists and is readable"
	case errors.Is(err, ErrValidation):
		return "file is not a decodable image; fix or remove it, then run fable retry"
	case errors.Is(err, ErrConfiguration):
		return "check the configuration file"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "model timed out; raise llm.timeout_seconds or reduce workers"
	case errors.Is(err, ErrExternalTool):
		return "check that Ollama is running and the model is pulled"
	default:
		return "check logs for details"
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
