package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type registration struct {
	id      uint64
	handler Handler
}

// InMemoryEmitter is a simple implementation of the Emitter interface
// that stores registered handlers in memory and dispatches updates to them
// in registration order.
type InMemoryEmitter struct {
	handlers []registration
	nextID   uint64
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEmitter creates a new instance of InMemoryEmitter.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEmitter{
		handlers: make([]registration, 0),
		logger:   logger.With("component", "in_memory_emitter"),
	}
}

// Register adds a new handler to receive updates. The returned function
// removes it; calling it more than once is harmless.
func (e *InMemoryEmitter) Register(handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, registration{id: id, handler: handler})
	e.logger.Debug("registered update handler", "handler_count", len(e.handlers))

	var once sync.Once
	return func() {
		once.Do(func() { e.unregister(id) })
	}
}

func (e *InMemoryEmitter) unregister(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.handlers {
		if r.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			break
		}
	}
	e.logger.Debug("unregistered update handler", "handler_count", len(e.handlers))
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEmitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Emit publishes the given update to all registered handlers.
// If any handler returns an error or panics, the update is still delivered
// to every other handler and the first error encountered is returned.
func (e *InMemoryEmitter) Emit(ctx context.Context, update Update) error {
	e.mu.RLock()
	handlers := make([]registration, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var firstErr error
	for i, r := range handlers {
		if err := safeHandle(ctx, r.handler, update); err != nil {
			e.logger.Error("handler failed to process update",
				"error", err,
				"handler_index", i,
				"task_id", update.TaskID,
				"generation", update.Generation)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func safeHandle(ctx context.Context, h Handler, update Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleUpdate(ctx, update)
}
