package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error raised by the agent wraps exactly one of these so
// callers can classify failures with errors.Is.
var (
	ErrConfig     = errors.New("configuration error")
	ErrCMS        = errors.New("cms error")
	ErrHarvesting = errors.New("harvesting error")
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid value")
)

// AgentError attaches a human-readable message and an optional cause to one
// of the error kinds above.
type AgentError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Is matches the error kind.
func (e *AgentError) Is(target error) bool { return target == e.Kind }

// Unwrap exposes the underlying cause.
func (e *AgentError) Unwrap() error { return e.Cause }

// Errorf builds an AgentError of the given kind without a cause.
func Errorf(kind error, format string, args ...any) error {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an AgentError of the given kind around cause.
func Wrap(kind error, cause error, format string, args ...any) error {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// HarvestingErrorf is shorthand for Errorf(ErrHarvesting, ...).
func HarvestingErrorf(format string, args ...any) error {
	return Errorf(ErrHarvesting, format, args...)
}
