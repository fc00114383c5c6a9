package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify failures surfacing out of executors and
// provider clients. The dispatcher inspects these with errors.Is to decide
// between the retry path and a permanent failure.
var (
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service error")
	ErrRateLimited     = errors.New("rate limited")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
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

// IsFatal reports whether an error should never be retried: configuration and
// validation failures require an operator fix, not another attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation)
}

// IsRateLimited reports whether an error carries the provider rate-limit signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
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
