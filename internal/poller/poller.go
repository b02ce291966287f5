package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/phrazzld/ocr-watch/internal/events"
	"github.com/phrazzld/ocr-watch/internal/redact"
	"github.com/phrazzld/ocr-watch/internal/task"
)

// generations hands every poller a process-wide, strictly increasing id so
// updates from a superseded poller can always be told apart.
var generations atomic.Uint64

// exportAll lets cmp read unexported fields, so comparing values in the
// polling loop never panics.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// sameValue reports whether a and b hold deeply equal values. Types with an
// Equal method, such as time.Time, are compared with it.
func sameValue[T any](a, b T) bool {
	return cmp.Equal(a, b, exportAll)
}

// errNoSnapshot is recorded when a source reports success without a snapshot.
var errNoSnapshot = errors.New("status source returned no snapshot")

// State is the consumer-visible state of one poller.
type State struct {
	// TaskID is the task this poller was created for
	TaskID string

	// Generation identifies this poller among all pollers in the process
	Generation uint64

	// Snapshot is the last successfully retrieved snapshot, nil until the
	// first query succeeds
	Snapshot *task.Snapshot

	// LastError is the most recent transient failure message, cleared on the
	// next successful query
	LastError string

	// Active is true while the loop is still scheduling queries
	Active bool

	// Abandoned is true when the failure cutoff ended polling
	Abandoned bool

	// ConsecutiveFailures counts query failures since the last success
	ConsecutiveFailures int

	// Attempts counts every query issued
	Attempts int
}

// Terminal reports whether the current snapshot has a terminal status.
func (s State) Terminal() bool {
	return s.Snapshot != nil && s.Snapshot.Status.IsTerminal()
}

// Update converts the state into the update published to subscribers.
func (s State) Update(at time.Time) events.Update {
	return events.Update{
		TaskID:              s.TaskID,
		Generation:          s.Generation,
		Snapshot:            s.Snapshot,
		LastError:           s.LastError,
		Active:              s.Active,
		Abandoned:           s.Abandoned,
		ConsecutiveFailures: s.ConsecutiveFailures,
		Attempts:            s.Attempts,
		ObservedAt:          at,
	}
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces the time source used for the elapsed-time cutoff and
// update timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Poller owns the query loop for a single task id.
type Poller struct {
	taskID  string
	source  StatusSource
	config  Config
	logger  *slog.Logger
	emitter *events.InMemoryEmitter
	now     func() time.Time

	// deliverMu is held for the whole of one delivery to subscribers. Stop
	// acquires it, so no delivery is under way once Stop returns.
	deliverMu sync.Mutex

	// mu guards everything below; the loop goroutine is the only writer of
	// state apart from Stop.
	mu          sync.Mutex
	state       State
	started     bool
	stopped     bool
	muted       bool
	finished    bool
	issued      uint64
	applied     uint64
	lastSuccess time.Time
	outcome     error
	cancel      context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a poller for taskID. It does nothing until Start is called.
func New(taskID string, source StatusSource, config Config, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	gen := generations.Add(1)
	logger = logger.With(
		"component", "poller",
		"task_id", taskID,
		"generation", gen,
	)

	p := &Poller{
		taskID:  taskID,
		source:  source,
		config:  config.normalize(logger),
		logger:  logger,
		emitter: events.NewInMemoryEmitter(logger),
		now:     time.Now,
		state: State{
			TaskID:     taskID,
			Generation: gen,
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TaskID returns the task this poller was created for.
func (p *Poller) TaskID() string {
	return p.taskID
}

// Generation returns the poller's process-wide generation number.
func (p *Poller) Generation() uint64 {
	return p.state.Generation
}

// Subscribe registers a handler that receives an update after every visible
// state change. The returned function removes the handler.
func (p *Poller) Subscribe(handler events.Handler) (unsubscribe func()) {
	return p.emitter.Register(handler)
}

// State returns a copy of the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the poller reaches an end state: terminal status,
// abandonment, or Stop/context cancellation.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Start begins polling. The first query is issued immediately. Calling Start
// more than once, or after Stop, has no effect; a finished poller is never
// restarted, create a new one instead.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		p.logger.Warn("poller already started, ignoring Start")
		return
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state.Active = true
	p.lastSuccess = p.now()
	p.mu.Unlock()

	p.logger.Info("polling started",
		"interval", p.config.Interval,
		"max_consecutive_failures", p.config.MaxConsecutiveFailures,
		"max_elapsed_without_success", p.config.MaxElapsedWithoutSuccess)

	go p.run(runCtx)
}

// Stop ends polling synchronously: once Stop returns no query result, in
// flight or future, will change the poller's state, and no subscriber will
// be notified again. A delivery already under way is waited for, so Stop
// must not be called from one of this poller's own handlers; cancel the
// context passed to Start instead. Stopping a poller that already reached an
// end state keeps its outcome.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.muted = true
	ended := p.stopped || p.finished
	var cancel context.CancelFunc
	if !ended {
		cancel = p.stopLocked()
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.deliverMu.Lock()
	//nolint:staticcheck // empty critical section: waits for an in-progress delivery
	p.deliverMu.Unlock()

	if ended {
		return
	}
	p.logger.Info("polling stopped")
	p.closeDone()
}

// stopLocked marks the poller stopped. Callers must hold p.mu.
func (p *Poller) stopLocked() context.CancelFunc {
	p.stopped = true
	p.started = true
	p.state.Active = false
	p.outcome = ErrStopped
	return p.cancel
}

// Wait blocks until the poller reaches an end state or ctx is done. It
// returns the final state together with nil for a succeeded task, a
// *TaskFailedError for a failed one, an error wrapping ErrPollingAbandoned,
// or ErrStopped.
func (p *Poller) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.outcome
}

func (p *Poller) closeDone() {
	p.doneOnce.Do(func() { close(p.done) })
}

// run is the polling loop. It is the only goroutine that issues queries.
func (p *Poller) run(ctx context.Context) {
	defer p.closeDone()

	for {
		seq, ok := p.beginQuery(ctx)
		if !ok {
			return
		}

		snapshot, err := p.source.FetchStatus(ctx, p.taskID)

		update, publish, next := p.complete(ctx, seq, snapshot, err)
		if publish {
			p.publish(ctx, update)
		}
		if !next {
			p.release()
			return
		}

		timer := time.NewTimer(p.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.Stop()
			return
		case <-timer.C:
		}
	}
}

// beginQuery tags the next query with a sequence number, or reports false if
// the poller should not issue it.
func (p *Poller) beginQuery(ctx context.Context) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.finished {
		return 0, false
	}
	if ctx.Err() != nil {
		p.stopLocked()
		return 0, false
	}

	p.issued++
	p.state.Attempts++
	p.logger.Debug("issuing status query", "attempt", p.state.Attempts)
	return p.issued, true
}

// complete applies the result of query seq. It returns the update to publish
// (if any) and whether the loop should schedule another query.
func (p *Poller) complete(ctx context.Context, seq uint64, snapshot *task.Snapshot, err error) (events.Update, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.finished {
		p.logger.Debug("discarding result of superseded query", "seq", seq)
		return events.Update{}, false, false
	}
	if ctx.Err() != nil {
		p.stopLocked()
		p.logger.Debug("discarding result after cancellation", "seq", seq)
		return events.Update{}, false, false
	}
	if seq <= p.applied {
		p.logger.Warn("discarding out-of-order query result",
			"seq", seq,
			"applied_seq", p.applied)
		return events.Update{}, false, true
	}
	p.applied = seq

	now := p.now()
	if err == nil && snapshot == nil {
		err = errNoSnapshot
	}
	if err != nil {
		return p.applyFailure(now, err)
	}
	return p.applySuccess(now, snapshot)
}

func (p *Poller) applyFailure(now time.Time, err error) (events.Update, bool, bool) {
	msg := task.ErrorMessage(err)
	p.state.LastError = msg
	p.state.ConsecutiveFailures++

	p.logger.Warn("status query failed",
		"error", redact.String(msg),
		"consecutive_failures", p.state.ConsecutiveFailures,
		"has_snapshot", p.state.Snapshot != nil)

	if reason := p.abandonReason(now); reason != "" {
		p.state.Active = false
		p.state.Abandoned = true
		p.finished = true
		p.outcome = fmt.Errorf("%w: %s (last error: %s)", ErrPollingAbandoned, reason, msg)
		p.logger.Error("polling abandoned",
			"reason", reason,
			"attempts", p.state.Attempts)
		return p.state.Update(now), true, false
	}

	return p.state.Update(now), true, true
}

func (p *Poller) abandonReason(now time.Time) string {
	if limit := p.config.MaxConsecutiveFailures; limit > 0 && p.state.ConsecutiveFailures >= limit {
		return fmt.Sprintf("%d consecutive query failures", p.state.ConsecutiveFailures)
	}
	if limit := p.config.MaxElapsedWithoutSuccess; limit > 0 {
		if since := now.Sub(p.lastSuccess); since >= limit {
			return fmt.Sprintf("no successful query for %s", since.Round(time.Millisecond))
		}
	}
	return ""
}

func (p *Poller) applySuccess(now time.Time, snapshot *task.Snapshot) (events.Update, bool, bool) {
	prev := p.state
	p.lastSuccess = now

	unchanged := prev.Snapshot != nil && sameValue(prev.Snapshot, snapshot)
	if unchanged {
		// Keep the previously published value so an identical result is a
		// true no-op for consumers holding the old pointer.
		snapshot = prev.Snapshot
	}
	p.state.Snapshot = snapshot
	p.state.LastError = ""
	p.state.ConsecutiveFailures = 0

	if prev.LastError != "" {
		p.logger.Info("status query recovered",
			"failures_before_recovery", prev.ConsecutiveFailures)
	}

	if snapshot.Status.IsTerminal() {
		p.state.Active = false
		p.finished = true
		p.outcome = nil
		if snapshot.Status == task.StatusFailed {
			msg := ""
			if snapshot.ErrorMessage != nil {
				msg = *snapshot.ErrorMessage
			}
			p.outcome = &TaskFailedError{TaskID: p.taskID, Message: msg}
		}
		p.logger.Info("task reached terminal status",
			"status", snapshot.Status,
			"attempts", p.state.Attempts)
		return p.state.Update(now), true, false
	}

	if unchanged && prev.LastError == "" {
		return events.Update{}, false, true
	}

	p.logger.Debug("snapshot applied",
		"status", snapshot.Status,
		"attempts", p.state.Attempts)
	return p.state.Update(now), true, true
}

// publish delivers an update unless Stop was called after the update was
// computed.
func (p *Poller) publish(ctx context.Context, update events.Update) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	muted := p.muted
	p.mu.Unlock()
	if muted {
		return
	}

	if err := p.emitter.Emit(ctx, update); err != nil {
		p.logger.Warn("update handler failed", "error", err)
	}
}

// release cancels the run context once the loop ends on its own.
func (p *Poller) release() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
