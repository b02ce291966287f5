package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// recordingHandler captures every update it receives
type recordingHandler struct {
	mu      sync.Mutex
	updates []Update
	err     error
}

func (h *recordingHandler) HandleUpdate(_ context.Context, u Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

func TestInMemoryEmitter(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	update := Update{TaskID: "T1", Generation: 1, Active: true}

	t.Run("emit with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)
		assert.NoError(t, emitter.Emit(context.Background(), update))
	})

	t.Run("emit to every handler in order", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)

		var order []string
		emitter.Register(HandlerFunc(func(context.Context, Update) error {
			order = append(order, "first")
			return nil
		}))
		emitter.Register(HandlerFunc(func(context.Context, Update) error {
			order = append(order, "second")
			return nil
		}))

		require.NoError(t, emitter.Emit(context.Background(), update))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)

		failing := &recordingHandler{err: errors.New("handler error")}
		ok := &recordingHandler{}
		emitter.Register(failing)
		emitter.Register(ok)

		err := emitter.Emit(context.Background(), update)
		assert.EqualError(t, err, "handler error")
		assert.Equal(t, 1, failing.count())
		assert.Equal(t, 1, ok.count())
	})

	t.Run("panicking handler is recovered", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)

		ok := &recordingHandler{}
		emitter.Register(HandlerFunc(func(context.Context, Update) error {
			panic("kaboom")
		}))
		emitter.Register(ok)

		err := emitter.Emit(context.Background(), update)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
		assert.Equal(t, 1, ok.count())
	})

	t.Run("unregister stops delivery", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)

		h := &recordingHandler{}
		unregister := emitter.Register(h)
		require.NoError(t, emitter.Emit(context.Background(), update))

		unregister()
		unregister()
		assert.Equal(t, 0, emitter.HandlerCount())

		require.NoError(t, emitter.Emit(context.Background(), update))
		assert.Equal(t, 1, h.count())
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		emitter := NewInMemoryEmitter(nil)
		assert.NoError(t, emitter.Emit(context.Background(), update))
	})
}

func TestUpdate_TerminalAndStale(t *testing.T) {
	t.Parallel()

	assert.False(t, Update{}.Terminal())
	assert.False(t, Update{Snapshot: &task.Snapshot{Status: task.StatusRunning}}.Terminal())
	assert.True(t, Update{Snapshot: &task.Snapshot{Status: task.StatusFailed}}.Terminal())

	assert.False(t, Update{}.Stale())
	assert.True(t, Update{LastError: "timeout"}.Stale())
}
