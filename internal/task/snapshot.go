package task

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Snapshot is one immutable view of a task as reported by the status endpoint.
// Snapshots are never mutated after construction, only replaced.
type Snapshot struct {
	TaskID       string    `json:"task_id"                 validate:"required"`
	Status       Status    `json:"status"                  validate:"required"`
	TaskType     Type      `json:"task_type,omitempty"     validate:"omitempty,oneof=pdf image"`
	CreatedAt    time.Time `json:"created_at"              validate:"required"`
	UpdatedAt    time.Time `json:"updated_at"              validate:"required"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	Progress     *Progress `json:"progress,omitempty"`
	Timing       *Timing   `json:"timing,omitempty"`
	Result       *Result   `json:"result,omitempty"`
}

// Progress is the server's account of how far a task has come. Percent is
// computed server-side (possibly weighted) and must not be derived from
// Current/Total by consumers.
type Progress struct {
	Current int     `json:"current"           validate:"gte=0"`
	Total   int     `json:"total"             validate:"gte=0"`
	Percent float64 `json:"percent"`
	Message *string `json:"message,omitempty"`
}

// Timing holds the queue and execution timestamps of a task.
type Timing struct {
	QueuedAt   *time.Time `json:"queued_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
}

// Result references the artifacts of a succeeded task. URLs are
// server-relative; see the view package for resolving them.
type Result struct {
	MarkdownURL *string      `json:"markdown_url,omitempty"`
	RawJSONURL  *string      `json:"raw_json_url,omitempty"`
	ArchiveURL  *string      `json:"archive_url,omitempty"`
	ImageURLs   []string     `json:"image_urls"`
	Pages       []PageResult `json:"pages"                  validate:"dive"`
}

// PageResult is the OCR output for one page, in document order.
type PageResult struct {
	Index       int           `json:"index"        validate:"gte=0"`
	Markdown    string        `json:"markdown"`
	RawText     string        `json:"raw_text"`
	ImageAssets []string      `json:"image_assets"`
	Boxes       []BoundingBox `json:"boxes"`
}

// BoundingBox is a detected label and its [x1, y1, x2, y2] box.
type BoundingBox struct {
	Label string `json:"label"`
	Box   []int  `json:"box"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(snapshotStructLevel, Snapshot{})
	v.RegisterStructValidation(progressStructLevel, Progress{})
	v.RegisterStructValidation(timingStructLevel, Timing{})
	return v
}

// Validate checks every snapshot invariant. The returned error wraps
// ErrInvalidSnapshot.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

// Normalize returns a copy of s with fields that cannot coexist with its
// status removed: a result only survives on a succeeded task and an error
// message only on a failed one. Progress and timing slips a server can make
// while counting are repaired rather than left for Validate to reject:
// current is capped at a positive total, a negative duration is dropped, and
// a timestamp earlier than the one before it in the queued, started and
// finished sequence is dropped. The receiver is left untouched.
func (s *Snapshot) Normalize() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if out.Status != StatusSucceeded {
		out.Result = nil
	}
	if out.Status != StatusFailed {
		out.ErrorMessage = nil
	}
	if p := out.Progress; p != nil && p.Total > 0 && p.Current > p.Total {
		capped := *p
		capped.Current = capped.Total
		out.Progress = &capped
	}
	if out.Timing != nil {
		out.Timing = out.Timing.normalize()
	}
	return &out
}

func (t *Timing) normalize() *Timing {
	out := *t
	if out.DurationMs != nil && *out.DurationMs < 0 {
		out.DurationMs = nil
	}
	var prev *time.Time
	for _, at := range []**time.Time{&out.QueuedAt, &out.StartedAt, &out.FinishedAt} {
		if *at == nil {
			continue
		}
		if prev != nil && (*at).Before(*prev) {
			*at = nil
			continue
		}
		prev = *at
	}
	return &out
}

func snapshotStructLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(Snapshot)

	if s.Status != "" && !s.Status.Valid() {
		sl.ReportError(s.Status, "Status", "Status", "status", "")
	}
	if !s.CreatedAt.IsZero() && s.UpdatedAt.Before(s.CreatedAt) {
		sl.ReportError(s.UpdatedAt, "UpdatedAt", "UpdatedAt", "gtecreated", "")
	}
	if s.Result != nil && s.Status != StatusSucceeded {
		sl.ReportError(s.Result, "Result", "Result", "succeededonly", "")
	}
	if s.ErrorMessage != nil && s.Status != StatusFailed {
		sl.ReportError(s.ErrorMessage, "ErrorMessage", "ErrorMessage", "failedonly", "")
	}
}

func progressStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(Progress)
	if p.Total > 0 && p.Current > p.Total {
		sl.ReportError(p.Current, "Current", "Current", "ltetotal", "")
	}
}

func timingStructLevel(sl validator.StructLevel) {
	t := sl.Current().Interface().(Timing)
	ordered := []struct {
		name string
		at   *time.Time
	}{
		{"QueuedAt", t.QueuedAt},
		{"StartedAt", t.StartedAt},
		{"FinishedAt", t.FinishedAt},
	}
	// Every present pair must be ordered, so compare each timestamp with the
	// latest earlier one that is present.
	var prev *time.Time
	for _, o := range ordered {
		if o.at == nil {
			continue
		}
		if prev != nil && o.at.Before(*prev) {
			sl.ReportError(*o.at, o.name, o.name, "chronological", "")
		}
		prev = o.at
	}
}
