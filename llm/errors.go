package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying LLM errors.

// TransientError represents a temporary error that may succeed on retry
// or on the next endpoint in the fallback chain.
type TransientError struct {
	Endpoint string
	err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.err.Error())
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(endpoint string, err error) error {
	return &TransientError{Endpoint: endpoint, err: err}
}

// FatalError represents a permanent error that should not be retried.
// A malformed request or rejected credentials will fail identically
// against every endpoint.
type FatalError struct {
	Endpoint string
	err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.err.Error())
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(endpoint string, err error) error {
	return &FatalError{Endpoint: endpoint, err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
