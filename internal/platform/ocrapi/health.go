package ocrapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/phrazzld/ocr-watch/internal/task"
)

// HealthStatusHealthy is reported once the model is loaded.
const HealthStatusHealthy = "healthy"

// Health is the service's self-reported readiness.
type Health struct {
	Status          string `json:"status"`
	ModelLoaded     bool   `json:"model_loaded"`
	InferenceEngine string `json:"inference_engine"`
}

// Ready reports whether the service can accept OCR work.
func (h *Health) Ready() bool {
	return h != nil && h.Status == HealthStatusHealthy && h.ModelLoaded
}

// Health queries the service health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	const op = "health check"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("health"), nil)
	if err != nil {
		return nil, task.NewTransportError(op, 0, "build request: "+err.Error(), err)
	}

	raw, err := c.send(ctx, op, req)
	if err != nil {
		return nil, err
	}

	var h Health
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, task.NewTransportError(op, http.StatusOK, "malformed health response: "+err.Error(), err)
	}
	return &h, nil
}
