package poller

import (
	"errors"
	"fmt"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// Common errors returned by the poller package
var (
	// ErrPollingAbandoned is returned when polling gave up after the configured
	// failure cutoff. It says nothing about the task itself.
	ErrPollingAbandoned = errors.New("polling abandoned")

	// ErrStopped is returned by Wait when the poller was stopped or its context
	// was cancelled before the task reached a terminal status.
	ErrStopped = errors.New("polling stopped")
)

// TaskFailedError reports an authoritative task failure from the server.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s failed", e.TaskID)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// Unwrap lets callers match on task.ErrTaskFailed.
func (e *TaskFailedError) Unwrap() error {
	return task.ErrTaskFailed
}
