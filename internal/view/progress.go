package view

import (
	"math"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// PercentComplete returns the server-reported percent clamped into [0, 100].
// ok is false when there is no progress worth showing: progress is absent, or
// it has no total, no percent and no message.
func PercentComplete(p *task.Progress) (percent float64, ok bool) {
	if p == nil {
		return 0, false
	}

	percent = clampPercent(p.Percent)
	hasMessage := p.Message != nil && *p.Message != ""
	if p.Total == 0 && percent == 0 && !hasMessage {
		return 0, false
	}
	return percent, true
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
