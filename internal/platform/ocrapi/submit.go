package ocrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// pdfFormField is the multipart field the service reads the upload from.
const pdfFormField = "pdf"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// SubmitPDF uploads a PDF for asynchronous OCR and returns the new task id.
// Files without a .pdf extension are rejected with ErrNotPDF before anything
// is sent.
func (c *Client) SubmitPDF(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	const op = "submit pdf"

	name := filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", fmt.Errorf("%w: %q", ErrNotPDF, name)
	}

	body, contentType, err := uploadBody(pdfFormField, name, "application/pdf", pdf)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "ocr", "pdf"), body)
	if err != nil {
		return "", task.NewTransportError(op, 0, "build request: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", contentType)

	raw, err := c.send(ctx, op, req)
	if err != nil {
		return "", err
	}

	var created struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", task.NewTransportError(op, http.StatusAccepted, "malformed submit response: "+err.Error(), err)
	}
	taskID := strings.TrimSpace(created.TaskID)
	if taskID == "" {
		return "", task.NewTransportError(op, http.StatusAccepted, "submit response has no task_id", nil)
	}

	c.logger.Info("ocrapi.task_submitted",
		"task_id", taskID,
		"filename", name,
		"bytes", body.Len(),
	)
	return taskID, nil
}

// uploadBody encodes r as the single file part field of a multipart form and
// returns the body with its Content-Type.
func uploadBody(field, filename, partType string, r io.Reader) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", partType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
