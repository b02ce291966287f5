package poller

import (
	"context"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// StatusSource fetches the current snapshot of a task.
// Every returned error is treated as transient; implementations are expected
// to complete eventually, with a snapshot or an error.
type StatusSource interface {
	FetchStatus(ctx context.Context, taskID string) (*task.Snapshot, error)
}

// StatusSourceFunc adapts an ordinary function to the StatusSource interface.
type StatusSourceFunc func(ctx context.Context, taskID string) (*task.Snapshot, error)

// FetchStatus calls f(ctx, taskID).
func (f StatusSourceFunc) FetchStatus(ctx context.Context, taskID string) (*task.Snapshot, error) {
	return f(ctx, taskID)
}
