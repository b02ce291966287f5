package sqlite

import (
	"errors"
	"fmt"
)

// Common errors returned by the sqlite package
var (
	// ErrEmptyPath is returned when Open is called without a database path
	ErrEmptyPath = errors.New("journal path cannot be empty")

	// ErrCorruptEntry is returned when a stored row cannot be decoded
	ErrCorruptEntry = errors.New("corrupt journal entry")
)

// mapError wraps a driver error with the operation that produced it.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("journal %s: %w", op, err)
}
