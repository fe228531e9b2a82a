// Package flowerrors defines the structured error kinds used across the
// flow control core. Each kind maps to a propagation policy described in
// spec.md §7: validation errors are fatal at load time, not-found errors
// are usually surfaced as nil/zero values to callers, timeouts and rate
// limits are tool-level, and upstream failures degrade per call site.
package flowerrors

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or schema-violating definition file.
// It is fatal: the component that produced it must not serve traffic.
type ValidationError struct {
	File  string
	Index int
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation: %s[%d].%s: %s", e.File, e.Index, e.Field, e.Msg)
}

// NewValidationError constructs a ValidationError naming the file, the
// zero-based index of the offending entry within the file, the field, and
// a human-readable message.
func NewValidationError(file string, index int, field, msg string) *ValidationError {
	return &ValidationError{File: file, Index: index, Field: field, Msg: msg}
}

// NotFoundError reports an unknown journey, state, tool, or context.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Kind, e.ID)
}

// NewNotFoundError constructs a NotFoundError for the given kind ("journey",
// "state", "tool", "context", ...) and identifier.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// TimeoutError reports a tool execution that exceeded its deadline.
type TimeoutError struct {
	Tool    string
	Seconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %.2fs", e.Tool, e.Seconds)
}

// RateLimitError reports a tool invocation rejected by a rate-limit policy.
type RateLimitError struct {
	Tool       string
	Identifier string
	MaxCalls   int
	Window     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("tool %q rate limit exceeded for %q: max %d calls per %s", e.Tool, e.Identifier, e.MaxCalls, e.Window)
}

// UpstreamError wraps a failure from the model, KV, or durable store. The
// Kind field records which collaborator failed so call sites can apply the
// correct degradation policy (§7).
type UpstreamError struct {
	Kind string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failure: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err with the failing collaborator kind ("model",
// "kv", "store").
func NewUpstreamError(kind string, err error) *UpstreamError {
	return &UpstreamError{Kind: kind, Err: err}
}

// IsNotFound reports whether err (or any error it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
