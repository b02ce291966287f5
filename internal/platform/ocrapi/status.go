package ocrapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/ocr-watch/internal/redact"
	"github.com/phrazzld/ocr-watch/internal/task"
)

// statusResponse is the wire form of GET /api/tasks/{id}.
type statusResponse struct {
	TaskID       string         `json:"task_id"`
	Status       task.Status    `json:"status"`
	TaskType     task.Type      `json:"task_type"`
	CreatedAt    wireTime       `json:"created_at"`
	UpdatedAt    wireTime       `json:"updated_at"`
	ErrorMessage *string        `json:"error_message"`
	Progress     *task.Progress `json:"progress"`
	Timing       *wireTiming    `json:"timing"`
	Result       *task.Result   `json:"result"`
}

type wireTiming struct {
	QueuedAt   *wireTime `json:"queued_at"`
	StartedAt  *wireTime `json:"started_at"`
	FinishedAt *wireTime `json:"finished_at"`
	DurationMs *int64    `json:"duration_ms"`
}

// wireTime accepts RFC 3339 timestamps as well as the zone-less ISO form
// some servers emit for naive datetimes, which is read as UTC.
type wireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range wireTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func (r *statusResponse) snapshot() *task.Snapshot {
	s := &task.Snapshot{
		TaskID:       r.TaskID,
		Status:       r.Status,
		TaskType:     r.TaskType,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		ErrorMessage: r.ErrorMessage,
		Progress:     r.Progress,
		Result:       r.Result,
	}
	s.Timing = r.Timing.timing()
	return s
}

func (t *wireTiming) timing() *task.Timing {
	if t == nil {
		return nil
	}
	return &task.Timing{
		QueuedAt:   t.QueuedAt.ptr(),
		StartedAt:  t.StartedAt.ptr(),
		FinishedAt: t.FinishedAt.ptr(),
		DurationMs: t.DurationMs,
	}
}

// FetchStatus retrieves the current snapshot of a task. It implements
// poller.StatusSource.
//
// The snapshot is normalized before validation: a result reported for a
// task that has not succeeded, or an error message for one that has not
// failed, is dropped rather than rejected.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (*task.Snapshot, error) {
	const op = "fetch status"

	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, task.NewTransportError(op, 0, ErrEmptyTaskID.Error(), ErrEmptyTaskID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "tasks", taskID), nil)
	if err != nil {
		return nil, task.NewTransportError(op, 0, "build request: "+err.Error(), err)
	}

	raw, err := c.send(ctx, op, req)
	if err != nil {
		return nil, err
	}

	snapshot, err := c.decodeStatus(raw)
	if err != nil {
		c.logger.Warn("ocrapi.decode_error",
			"op", op,
			"task_id", taskID,
			"error", redact.Error(err),
		)
		return nil, task.NewTransportError(op, http.StatusOK, "malformed status response: "+err.Error(), err)
	}
	return snapshot, nil
}

func (c *Client) decodeStatus(raw []byte) (*task.Snapshot, error) {
	if err := validateDocument(c.schema, raw); err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}

	snapshot := resp.snapshot().Normalize()
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}
