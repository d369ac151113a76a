package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient failure")
	ErrTimeout          = errors.New("timeout")
	ErrExternalTool     = errors.New("external tool error")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrFatalStage       = errors.New("fatal stage failure")
	ErrNonFatalStage    = errors.New("non-fatal stage failure")
)

const maxFailureMessageLength = 2000

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
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

// IsRetryable reports whether another attempt of the failed operation could succeed.
// Timeouts and tool crashes are retried; bad input, configuration problems and
// vanished assets are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrUnsupportedInput):
		return false
	default:
		return true
	}
}

// IsNotFound reports whether err marks a missing or deleted asset.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FailureMessage renders err as the human-readable text stored on a failed asset.
func FailureMessage(err error) string {
	if err == nil {
		return "processing failed"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "processing failed"
	}
	if len(msg) > maxFailureMessageLength {
		msg = msg[:maxFailureMessageLength]
	}
	return msg
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
