package fakeocr

import (
	"fmt"
	"net/http"
	"time"
)

// Created is the created_at stamp used by Status bodies.
var Created = time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

// Detail builds an error reply in the service's {"detail": ...} shape.
func Detail(status int, detail string) Reply {
	return Reply{Status: status, Body: map[string]any{"detail": detail}}
}

// Status builds a minimal valid status body. Callers add optional fields
// such as "progress", "timing" or "result" to the returned map.
func Status(taskID, status string) map[string]any {
	return map[string]any{
		"task_id":    taskID,
		"status":     status,
		"task_type":  "pdf",
		"created_at": Created.Format(time.RFC3339Nano),
		"updated_at": Created.Format(time.RFC3339Nano),
	}
}

// Progress builds a progress object.
func Progress(current, total int, percent float64, message string) map[string]any {
	p := map[string]any{
		"current": current,
		"total":   total,
		"percent": percent,
	}
	if message != "" {
		p["message"] = message
	}
	return p
}

// Succeeded builds a succeeded status body whose result points at the
// service's download route.
func Succeeded(taskID string) map[string]any {
	body := Status(taskID, "succeeded")
	download := func(name string) string {
		return fmt.Sprintf("/api/tasks/%s/download/%s", taskID, name)
	}
	body["result"] = map[string]any{
		"markdown_url": download("result.md"),
		"raw_json_url": download("result.json"),
		"archive_url":  download("result.zip"),
		"image_urls":   []string{download("images/page-1.png")},
		"pages": []map[string]any{{
			"index":        0,
			"markdown":     "# Page 1",
			"raw_text":     "Page 1",
			"image_assets": []string{"images/page-1.png"},
			"boxes":        []map[string]any{{"label": "title", "box": []int{10, 10, 200, 40}}},
		}},
	}
	body["timing"] = map[string]any{
		"queued_at":   Created.Format(time.RFC3339Nano),
		"started_at":  Created.Add(time.Second).Format(time.RFC3339Nano),
		"finished_at": Created.Add(13 * time.Second).Format(time.RFC3339Nano),
		"duration_ms": 12000,
	}
	body["updated_at"] = Created.Add(13 * time.Second).Format(time.RFC3339Nano)
	return body
}

// ImageOCR builds a successful image recognition body with two boxes on a
// 200x100 image. The timing block carries the only duration.
func ImageOCR(taskID string) map[string]any {
	return map[string]any{
		"success":  true,
		"text":     "Invoice 42",
		"raw_text": "<|ref|>title<|/ref|><|det|>[[10, 10, 110, 30]]<|/det|>Invoice 42",
		"boxes": []map[string]any{
			{"label": "title", "box": []int{10, 10, 110, 30}},
			{"label": "stamp", "box": []int{150, 60, 150, 90}},
		},
		"image_dims": map[string]int{"w": 200, "h": 100},
		"task_id":    taskID,
		"timing": map[string]any{
			"queued_at":   Created.Format(time.RFC3339Nano),
			"started_at":  Created.Format(time.RFC3339Nano),
			"finished_at": Created.Add(1500 * time.Millisecond).Format(time.RFC3339Nano),
			"duration_ms": 1500,
		},
	}
}

// Failed builds a failed status body.
func Failed(taskID, message string) map[string]any {
	body := Status(taskID, "failed")
	body["error_message"] = message
	return body
}

// OK wraps a body in a 200 reply.
func OK(body any) Reply {
	return Reply{Status: http.StatusOK, Body: body}
}
