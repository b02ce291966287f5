package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/phrazzld/ocr-watch/internal/events"
)

// Watcher keeps at most one poller active at a time. Every call to Watch
// supersedes the previous poller; once Watch or Clear returns, subscribers
// never see another update from a superseded poller.
//
// Watch and Clear wait for a delivery that is already under way, so they must
// not be called from one of the watcher's own subscribers.
type Watcher struct {
	source  StatusSource
	config  Config
	logger  *slog.Logger
	opts    []Option
	emitter *events.InMemoryEmitter

	// deliverMu is held while an update is matched against the current poller
	// and forwarded, and while current is replaced.
	deliverMu sync.Mutex

	mu          sync.Mutex
	current     *Poller
	unsubscribe func()
}

// NewWatcher creates a Watcher whose pollers query source with config.
func NewWatcher(source StatusSource, config Config, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "watcher")
	return &Watcher{
		source:  source,
		config:  config,
		logger:  logger,
		opts:    opts,
		emitter: events.NewInMemoryEmitter(logger),
	}
}

// Watch stops the current poller, if any, and starts a fresh one for taskID.
// Nothing from the previous task carries over, even when taskID is unchanged.
// A blank taskID only clears the watcher and returns nil.
func (w *Watcher) Watch(ctx context.Context, taskID string) *Poller {
	taskID = strings.TrimSpace(taskID)

	var (
		p           *Poller
		unsubscribe func()
	)
	if taskID != "" {
		p = New(taskID, w.source, w.config, w.logger, w.opts...)
		unsubscribe = p.Subscribe(events.HandlerFunc(func(ctx context.Context, u events.Update) error {
			return w.forward(ctx, p, u)
		}))
	}

	w.retire(w.replace(p, unsubscribe))
	if p == nil {
		w.logger.Debug("watcher cleared")
		return nil
	}

	w.logger.Info("watching task", "task_id", taskID, "generation", p.Generation())
	p.Start(ctx)
	return p
}

// Clear stops the current poller without starting another.
func (w *Watcher) Clear() {
	w.retire(w.replace(nil, nil))
}

// replace installs p as the current poller once no delivery is under way and
// returns the one it superseded.
func (w *Watcher) replace(p *Poller, unsubscribe func()) (*Poller, func()) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	old, oldUnsubscribe := w.current, w.unsubscribe
	w.current, w.unsubscribe = p, unsubscribe
	return old, oldUnsubscribe
}

// retire stops a superseded poller. It runs without holding deliverMu so the
// poller's own pending delivery can drain through forward.
func (w *Watcher) retire(p *Poller, unsubscribe func()) {
	if p == nil {
		return
	}
	p.Stop()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// forward passes u on to subscribers if p is still the current poller.
func (w *Watcher) forward(ctx context.Context, p *Poller, u events.Update) error {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	if !w.isCurrent(p) {
		return nil
	}
	return w.emitter.Emit(ctx, u)
}

func (w *Watcher) isCurrent(p *Poller) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current == p
}

// Current returns the active poller, or nil.
func (w *Watcher) Current() *Poller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// State returns the current poller's state. ok is false when nothing is
// being watched.
func (w *Watcher) State() (state State, ok bool) {
	p := w.Current()
	if p == nil {
		return State{}, false
	}
	return p.State(), true
}

// Subscribe registers a handler for updates from whichever poller is current.
func (w *Watcher) Subscribe(handler events.Handler) (unsubscribe func()) {
	return w.emitter.Register(handler)
}
