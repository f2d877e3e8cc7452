package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a requested row does not exist. Callers
	// use errors.Is to distinguish absence from infrastructure failures.
	ErrNotFound = errors.New("not found")
)
