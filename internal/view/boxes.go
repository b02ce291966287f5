package view

import (
	"fmt"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// BoxRegion is a bounding box placed on its image as percentages of the
// image's width and height, each within [0, 100].
type BoxRegion struct {
	ID     string
	Label  string
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// PreviewBoxes places [x1, y1, x2, y2] pixel boxes on a w by h image. Boxes
// without four coordinates or with no area are skipped, as is everything
// when either dimension is not positive. IDs are "<label>-<index>" with the
// index of the box in the input.
func PreviewBoxes(boxes []task.BoundingBox, w, h int) []BoxRegion {
	if w <= 0 || h <= 0 {
		return nil
	}

	var regions []BoxRegion
	for i, b := range boxes {
		if len(b.Box) < 4 {
			continue
		}
		x1, y1, x2, y2 := b.Box[0], b.Box[1], b.Box[2], b.Box[3]
		width, height := max(x2-x1, 0), max(y2-y1, 0)
		if width == 0 || height == 0 {
			continue
		}
		regions = append(regions, BoxRegion{
			ID:     fmt.Sprintf("%s-%d", b.Label, i),
			Label:  b.Label,
			Left:   percentOf(x1, w),
			Top:    percentOf(y1, h),
			Width:  percentOf(width, w),
			Height: percentOf(height, h),
		})
	}
	return regions
}

func percentOf(v, of int) float64 {
	return clampPercent(float64(v) / float64(of) * 100)
}
