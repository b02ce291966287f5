package view

import (
	"time"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// TimestampLayout is the layout used by FormatTimestamp.
const TimestampLayout = "01-02 15:04:05"

// FormatTimestamp renders t in loc (time.Local when nil). ok is false for an
// absent or zero timestamp.
func FormatTimestamp(t *time.Time, loc *time.Location) (string, bool) {
	if t == nil || t.IsZero() {
		return "", false
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout), true
}

// StatusLabel returns a short human label for a status.
func StatusLabel(s task.Status) string {
	switch s {
	case task.StatusPending:
		return "queued"
	case task.StatusRunning:
		return "running"
	case task.StatusSucceeded:
		return "completed"
	case task.StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Summary is everything a presentation layer needs to render one snapshot.
type Summary struct {
	TaskID      string
	Status      task.Status
	StatusLabel string
	Terminal    bool

	// ShowProgress is false when Percent carries no information
	ShowProgress    bool
	Percent         float64
	Current         int
	Total           int
	ProgressMessage string

	Elapsed    string
	StartedAt  string
	FinishedAt string

	ErrorMessage string
	Artifacts    []Artifact
	PageCount    int
}

// Build derives a Summary from s. Artifact paths are resolved against base
// and timestamps rendered in loc. A nil snapshot yields an empty Summary with
// an unknown elapsed label.
func Build(s *task.Snapshot, base string, loc *time.Location) Summary {
	if s == nil {
		return Summary{Elapsed: UnknownDuration}
	}

	sum := Summary{
		TaskID:      s.TaskID,
		Status:      s.Status,
		StatusLabel: StatusLabel(s.Status),
		Terminal:    s.Status.IsTerminal(),
		Elapsed:     UnknownDuration,
	}

	if p := s.Progress; p != nil {
		sum.Percent, sum.ShowProgress = PercentComplete(p)
		sum.Current = p.Current
		sum.Total = p.Total
		if p.Message != nil {
			sum.ProgressMessage = *p.Message
		}
	}

	if t := s.Timing; t != nil {
		sum.Elapsed = ElapsedLabel(t.DurationMs)
		sum.StartedAt, _ = FormatTimestamp(t.StartedAt, loc)
		sum.FinishedAt, _ = FormatTimestamp(t.FinishedAt, loc)
	}

	if s.Status == task.StatusFailed && s.ErrorMessage != nil {
		sum.ErrorMessage = *s.ErrorMessage
	}
	if s.Status == task.StatusSucceeded && s.Result != nil {
		sum.Artifacts = Artifacts(s.Result, base)
		sum.PageCount = len(s.Result.Pages)
	}
	return sum
}
