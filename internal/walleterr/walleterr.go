// Package walleterr defines the error taxonomy shared by both wallet
// pipelines. Structural problems (ValidationError, SizeLimitError) are
// always raised before any signing or network side effect.
package walleterr

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more structurally invalid or missing fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pass data: %s", strings.Join(e.Fields, ", "))
}

// Invalid builds a ValidationError naming the offending fields.
func Invalid(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// SigningError reports a failed signing attempt. Expired marks the
// fail-closed case (expired certificate); callers must not retry or
// fall back when it is set.
type SigningError struct {
	Strategy string
	Expired  bool
	Err      error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signing via %s failed", e.Strategy)
	}
	return fmt.Sprintf("signing via %s failed: %v", e.Strategy, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// NetworkError carries the upstream status of a failed remote wallet call.
type NetworkError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Operation, e.StatusCode, strings.TrimSpace(e.Body))
}

// SizeLimitError reports a serialized payload exceeding its ceiling,
// detected before signing.
type SizeLimitError struct {
	Size  int
	Limit int
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("payload is %d bytes, limit is %d", e.Size, e.Limit)
}

// ConfigurationError reports missing or malformed deployment configuration.
// It is surfaced to operators as guidance, not as a bare failure.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Missing, ", "))
}
