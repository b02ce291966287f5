package ocrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/phrazzld/ocr-watch/internal/redact"
	"github.com/phrazzld/ocr-watch/internal/task"
)

// DefaultTimeout bounds every request so that each status query eventually
// completes.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody caps how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// Client talks to one OCR service instance.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	schema  *jsonschema.Schema
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request/response events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the service at baseURL, e.g. http://localhost:8001.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidConfig, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be an absolute http(s) url", ErrInvalidConfig, baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	schema, err := compileStatusSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		baseURL: u,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		schema:  schema,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	c.logger = c.logger.With("component", "ocrapi")
	return c, nil
}

// BaseURL returns the normalized service base URL, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// endpoint joins path segments onto the base URL, escaping each segment.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")
	return u.String()
}

// send performs req and returns the body of a 2xx response. Every failure
// is a *task.TransportError.
func (c *Client) send(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req = req.WithContext(ctx)
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("ocrapi.request",
		"req_id", reqID,
		"op", op,
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		msg := sendErrorMessage(err)
		c.logger.Warn("ocrapi.send_error",
			"req_id", reqID,
			"op", op,
			"error", redact.Error(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, task.NewTransportError(op, 0, msg, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("ocrapi.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	ok := resp.StatusCode/100 == 2
	var reader io.Reader = resp.Body
	if !ok {
		reader = io.LimitReader(resp.Body, maxErrorBody)
	}
	raw, readErr := io.ReadAll(reader)

	c.logger.Debug("ocrapi.response",
		"req_id", reqID,
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if !ok {
		msg := errorDetail(raw)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, task.NewTransportError(op, resp.StatusCode, msg, nil)
	}
	if readErr != nil {
		return nil, task.NewTransportError(op, resp.StatusCode, "read response: "+sendErrorMessage(readErr), readErr)
	}
	return raw, nil
}

// sendErrorMessage turns a client error into a short human message.
func sendErrorMessage(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	}
	return err.Error()
}

// errorDetail extracts the "detail" field of an error body. A detail that is
// not a string (e.g. a list of validation problems) is returned as compact
// JSON.
func errorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(body.Detail) == "null" {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body.Detail); err != nil {
		return string(body.Detail)
	}
	return compact.String()
}
