package ocrapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// imageFormField is the multipart field the image endpoint reads from.
const imageFormField = "image"

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ImageDims are the pixel dimensions of the recognised image.
type ImageDims struct {
	W int `json:"w"`
	H int `json:"h"`
}

// ImageResult is the synchronous answer of POST /api/ocr/image.
type ImageResult struct {
	Text       string
	RawText    string
	Boxes      []task.BoundingBox
	ImageDims  *ImageDims
	TaskID     string
	Timing     *task.Timing
	DurationMs *int64
}

// Duration returns the top-level duration when the server sent one and the
// timing block's otherwise.
func (r *ImageResult) Duration() *int64 {
	if r.DurationMs != nil {
		return r.DurationMs
	}
	if r.Timing != nil {
		return r.Timing.DurationMs
	}
	return nil
}

type imageResponse struct {
	Success    bool               `json:"success"`
	Text       string             `json:"text"`
	RawText    string             `json:"raw_text"`
	Boxes      []task.BoundingBox `json:"boxes"`
	ImageDims  *ImageDims         `json:"image_dims"`
	TaskID     string             `json:"task_id"`
	Timing     *wireTiming        `json:"timing"`
	DurationMs *int64             `json:"duration_ms"`
}

// OCRImage uploads a single image and waits for its recognised text. Unlike
// SubmitPDF the service answers in the same request; the returned TaskID
// names the already finished task and can be passed to FetchStatus.
// Files whose extension is not a known image type are rejected with
// ErrNotImage before anything is sent.
func (c *Client) OCRImage(ctx context.Context, filename string, image io.Reader) (*ImageResult, error) {
	const op = "ocr image"

	name := filepath.Base(strings.TrimSpace(filename))
	partType, ok := imageContentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, name)
	}

	body, contentType, err := uploadBody(imageFormField, name, partType, image)
	if err != nil {
		return nil, err
	}
	size := body.Len()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "ocr", "image"), body)
	if err != nil {
		return nil, task.NewTransportError(op, 0, "build request: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", contentType)

	raw, err := c.send(ctx, op, req)
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, task.NewTransportError(op, http.StatusOK, "malformed image response: "+err.Error(), err)
	}
	if !resp.Success {
		return nil, task.NewTransportError(op, http.StatusOK, "image response reports failure", nil)
	}

	result := &ImageResult{
		Text:       resp.Text,
		RawText:    resp.RawText,
		Boxes:      resp.Boxes,
		ImageDims:  resp.ImageDims,
		TaskID:     strings.TrimSpace(resp.TaskID),
		Timing:     resp.Timing.timing(),
		DurationMs: resp.DurationMs,
	}

	c.logger.Info("ocrapi.image_ocr",
		"task_id", result.TaskID,
		"filename", name,
		"bytes", size,
		"boxes", len(result.Boxes),
	)
	return result, nil
}
