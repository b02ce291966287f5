package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/ocr-watch/internal/events"
	"github.com/phrazzld/ocr-watch/internal/task"
)

func TestWatcher_SwitchingTaskDiscardsPreviousResults(t *testing.T) {
	t.Parallel()

	t1Entered := make(chan struct{})
	t1Release := make(chan struct{})
	t1Returned := make(chan struct{})
	var once sync.Once

	source := StatusSourceFunc(func(ctx context.Context, taskID string) (*task.Snapshot, error) {
		switch taskID {
		case "T1":
			once.Do(func() { close(t1Entered) })
			<-t1Release
			defer close(t1Returned)
			return snapshot("T1", task.StatusSucceeded), nil
		default:
			return snapshot(taskID, task.StatusRunning), nil
		}
	})

	w := NewWatcher(source, testConfig(), discardLogger())
	rec := &recorder{}
	w.Subscribe(rec)

	p1 := w.Watch(context.Background(), "T1")
	require.NotNil(t, p1)
	<-t1Entered

	p2 := w.Watch(context.Background(), "T2")
	require.NotNil(t, p2)
	assert.Same(t, p2, w.Current())
	assert.Greater(t, p2.Generation(), p1.Generation())

	assert.Eventually(t, func() bool { return len(rec.all()) > 0 }, time.Second, testInterval)

	close(t1Release)
	<-t1Returned

	assert.Never(t, func() bool {
		for _, u := range rec.all() {
			if u.TaskID != "T2" {
				return true
			}
		}
		return false
	}, 30*time.Millisecond, testInterval)

	// the superseded poller never applied its late result
	assert.Nil(t, p1.State().Snapshot)
	assert.False(t, p1.State().Active)

	state, ok := w.State()
	require.True(t, ok)
	assert.Equal(t, "T2", state.TaskID)
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, task.StatusRunning, state.Snapshot.Status)

	w.Clear()
}

func TestWatcher_FreshStateForEveryWatch(t *testing.T) {
	t.Parallel()

	calls := 0
	var mu sync.Mutex
	source := StatusSourceFunc(func(ctx context.Context, taskID string) (*task.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return snapshot(taskID, task.StatusRunning), nil
		}
		return nil, task.NewTransportError("fetch status", 503, "service unavailable", nil)
	})

	w := NewWatcher(source, testConfig(), discardLogger())

	first := w.Watch(context.Background(), "T1")
	assert.Eventually(t, func() bool { return first.State().Snapshot != nil }, time.Second, testInterval)

	second := w.Watch(context.Background(), " T1 ")
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "T1", second.TaskID())

	assert.Eventually(t, func() bool { return second.State().LastError != "" }, time.Second, testInterval)
	assert.Nil(t, second.State().Snapshot)

	w.Clear()
}

func TestWatcher_BlankIDClears(t *testing.T) {
	t.Parallel()

	source := StatusSourceFunc(func(ctx context.Context, taskID string) (*task.Snapshot, error) {
		return snapshot(taskID, task.StatusRunning), nil
	})
	w := NewWatcher(source, testConfig(), discardLogger())

	p := w.Watch(context.Background(), "T1")
	require.NotNil(t, p)

	assert.Nil(t, w.Watch(context.Background(), "   "))
	assert.Nil(t, w.Current())
	_, ok := w.State()
	assert.False(t, ok)

	_, err := p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrStopped)

	// clearing an empty watcher is harmless
	w.Clear()
}

func TestWatcher_UnsubscribeStopsForwarding(t *testing.T) {
	t.Parallel()

	source := StatusSourceFunc(func(ctx context.Context, taskID string) (*task.Snapshot, error) {
		return snapshot(taskID, task.StatusRunning), nil
	})
	w := NewWatcher(source, testConfig(), discardLogger())

	rec := &recorder{}
	unsubscribe := w.Subscribe(rec)
	unsubscribe()

	p := w.Watch(context.Background(), "T1")
	assert.Eventually(t, func() bool { return p.State().Snapshot != nil }, time.Second, testInterval)
	assert.Empty(t, rec.all())

	w.Clear()
}

func TestWatcher_WatchWaitsForDeliveryInProgress(t *testing.T) {
	t.Parallel()

	source := StatusSourceFunc(func(ctx context.Context, taskID string) (*task.Snapshot, error) {
		return snapshot(taskID, task.StatusRunning), nil
	})
	w := NewWatcher(source, testConfig(), discardLogger())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	w.Subscribe(events.HandlerFunc(func(_ context.Context, u events.Update) error {
		if u.TaskID == "T1" {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return nil
	}))
	rec := &recorder{}
	w.Subscribe(rec)

	w.Watch(context.Background(), "T1")
	<-entered

	watched := make(chan *Poller)
	go func() { watched <- w.Watch(context.Background(), "T2") }()

	select {
	case <-watched:
		t.Fatal("Watch returned while an update of the previous task was being delivered")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	var p2 *Poller
	select {
	case p2 = <-watched:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after the delivery finished")
	}
	require.NotNil(t, p2)

	assert.Eventually(t, func() bool {
		all := rec.all()
		return len(all) > 0 && all[len(all)-1].TaskID == "T2"
	}, time.Second, testInterval)

	seenT2 := false
	for _, u := range rec.all() {
		if u.TaskID == "T2" {
			seenT2 = true
			continue
		}
		assert.False(t, seenT2, "update for %s gen=%d delivered after T2", u.TaskID, u.Generation)
	}

	w.Clear()
}
