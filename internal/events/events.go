package events

import (
	"context"
	"time"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// Update is a point-in-time copy of the state a poller exposes for one task.
// Snapshot and LastError are independent channels: Snapshot carries the
// server's authoritative view (including task failure) while LastError only
// says the latest query could not be completed.
type Update struct {
	// TaskID is the task the publishing poller was created for
	TaskID string

	// Generation identifies the poller run that produced the update
	Generation uint64

	// Snapshot is the last successfully retrieved snapshot, nil if none yet
	Snapshot *task.Snapshot

	// LastError is the most recent transient query failure, empty when cleared
	LastError string

	// Active is true while the polling loop is still scheduling queries
	Active bool

	// Abandoned is true when polling gave up after repeated query failures
	Abandoned bool

	// ConsecutiveFailures counts query failures since the last success
	ConsecutiveFailures int

	// Attempts counts every query issued by this poller run
	Attempts int

	// ObservedAt is when the poller produced this update
	ObservedAt time.Time
}

// Terminal reports whether the update carries a terminal task status.
func (u Update) Terminal() bool {
	return u.Snapshot != nil && u.Snapshot.Status.IsTerminal()
}

// Stale reports whether the snapshot may be out of date because the latest
// query failed.
func (u Update) Stale() bool {
	return u.LastError != ""
}

// Handler defines an interface for components that consume poller updates.
type Handler interface {
	// HandleUpdate processes the given update within the provided context.
	// Returns an error if the update cannot be handled successfully.
	HandleUpdate(ctx context.Context, update Update) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, update Update) error

// HandleUpdate calls f(ctx, update).
func (f HandlerFunc) HandleUpdate(ctx context.Context, update Update) error {
	return f(ctx, update)
}

// Emitter defines an interface for components that publish updates.
type Emitter interface {
	// Emit publishes the given update to all registered handlers.
	Emit(ctx context.Context, update Update) error

	// Register adds a handler and returns a function that removes it again.
	Register(handler Handler) (unregister func())
}
