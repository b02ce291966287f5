package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// StatusResponse is one scripted reply of a MockStatusSource.
type StatusResponse struct {
	Snapshot *task.Snapshot
	Err      error
}

// MockStatusSource implements poller.StatusSource for testing.
//
// Replies are taken from Responses in order; once the script is exhausted the
// last reply is repeated. FetchFn, when set, takes precedence over the script.
type MockStatusSource struct {
	// Custom behavior function
	FetchFn func(ctx context.Context, taskID string) (*task.Snapshot, error)

	// Scripted replies
	Responses []StatusResponse

	// Call tracking for verification
	FetchCalls struct {
		mu      sync.Mutex
		Count   int
		TaskIDs []string
	}

	mu   sync.Mutex
	next int
}

// NewMockStatusSource creates a mock that replays the given responses.
func NewMockStatusSource(responses ...StatusResponse) *MockStatusSource {
	return &MockStatusSource{Responses: responses}
}

// FetchStatus implements the poller.StatusSource interface
func (m *MockStatusSource) FetchStatus(ctx context.Context, taskID string) (*task.Snapshot, error) {
	m.FetchCalls.mu.Lock()
	m.FetchCalls.Count++
	m.FetchCalls.TaskIDs = append(m.FetchCalls.TaskIDs, taskID)
	m.FetchCalls.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(ctx, taskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil, nil
	}
	i := m.next
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	} else {
		m.next++
	}
	r := m.Responses[i]
	return r.Snapshot, r.Err
}

// CallCount returns how many times FetchStatus was called.
func (m *MockStatusSource) CallCount() int {
	m.FetchCalls.mu.Lock()
	defer m.FetchCalls.mu.Unlock()
	return m.FetchCalls.Count
}

// Reset clears call tracking and rewinds the script.
func (m *MockStatusSource) Reset() {
	m.FetchCalls.mu.Lock()
	m.FetchCalls.Count = 0
	m.FetchCalls.TaskIDs = nil
	m.FetchCalls.mu.Unlock()

	m.mu.Lock()
	m.next = 0
	m.mu.Unlock()
}
