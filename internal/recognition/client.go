// Package recognition is a client for the camera box's HTTP API: live
// detections, the trained label roster, enrollment and health.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultCurrentTimeout  = 2 * time.Second
	DefaultLabelsTimeout   = 5 * time.Second
	DefaultRegisterTimeout = 120 * time.Second

	maxBodySize = 1 << 20
)

var (
	// ErrBusy is returned when the box is already capturing for another
	// enrollment.
	ErrBusy       = errors.New("recognition box is busy capturing")
	ErrEmptyLabel = errors.New("label is required")
	ErrNoBaseURL  = errors.New("recognition box URL is not configured")
)

// StatusError is a non-2xx reply other than 409.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition box returned status %d", e.Code)
	}
	return fmt.Sprintf("recognition box returned status %d: %s", e.Code, e.Message)
}

type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	CurrentTimeout  time.Duration
	LabelsTimeout   time.Duration
	RegisterTimeout time.Duration
}

type Client struct {
	baseURL         string
	httpClient      *http.Client
	currentTimeout  time.Duration
	labelsTimeout   time.Duration
	registerTimeout time.Duration
}

func NewClient(config Config) *Client {
	c := &Client{
		baseURL:         normalizeBaseURL(config.BaseURL),
		httpClient:      config.HTTPClient,
		currentTimeout:  config.CurrentTimeout,
		labelsTimeout:   config.LabelsTimeout,
		registerTimeout: config.RegisterTimeout,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.currentTimeout <= 0 {
		c.currentTimeout = DefaultCurrentTimeout
	}
	if c.labelsTimeout <= 0 {
		c.labelsTimeout = DefaultLabelsTimeout
	}
	if c.registerTimeout <= 0 {
		c.registerTimeout = DefaultRegisterTimeout
	}
	return c
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL is the box's MJPEG endpoint.
func (c *Client) StreamURL() string {
	if c.baseURL == "" {
		return ""
	}
	return c.baseURL + "/mjpeg"
}

// Detection is one face currently in view. Confidence is nil when the box
// found a face but did not run recognition on it.
type Detection struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"conf"`
	BBox       []int    `json:"bbox"`
	Timestamp  float64  `json:"ts"`
}

type currentResponse struct {
	OK     *bool       `json:"ok"`
	Count  int         `json:"count"`
	People []Detection `json:"people"`
	TS     float64     `json:"ts"`
}

// Current returns the faces the box has seen recently. Entries without a
// label are skipped. A missing "ok" field counts as success; only an
// explicit "ok": false yields an empty result.
func (c *Client) Current(ctx context.Context) ([]Detection, error) {
	var resp currentResponse
	if _, err := c.do(ctx, c.currentTimeout, http.MethodGet, "/recog/current", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.OK != nil && !*resp.OK {
		return nil, nil
	}
	out := make([]Detection, 0, len(resp.People))
	for _, p := range resp.People {
		p.Label = strings.TrimSpace(p.Label)
		if p.Label == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// CurrentNames returns the distinct labels currently in view, in the order
// the box reported them.
func (c *Client) CurrentNames(ctx context.Context) ([]string, error) {
	people, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(people))
	names := make([]string, 0, len(people))
	for _, p := range people {
		if seen[p.Label] {
			continue
		}
		seen[p.Label] = true
		names = append(names, p.Label)
	}
	return names, nil
}

type labelsResponse struct {
	OK      *bool    `json:"ok"`
	Labels  []string `json:"labels"`
	Enabled *bool    `json:"enabled"`
	Error   string   `json:"error"`
}

// Labels returns the names the recognizer is trained on.
func (c *Client) Labels(ctx context.Context) ([]string, error) {
	var resp labelsResponse
	if _, err := c.do(ctx, c.labelsTimeout, http.MethodGet, "/recog/labels", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.OK != nil && !*resp.OK {
		return nil, fmt.Errorf("failed to list labels: %s", resp.Error)
	}
	return cleanLabels(resp.Labels), nil
}

type RegisterRequest struct {
	Label       string `json:"label"`
	TargetCount int    `json:"target_count"`
	IntervalMS  int    `json:"interval_ms"`
	Wait        bool   `json:"wait"`
	Retrain     bool   `json:"retrain"`
	FaceOnly    bool   `json:"face"`
}

// DefaultRegisterRequest mirrors the box's own defaults, waiting for the
// capture to finish.
func DefaultRegisterRequest(label string) RegisterRequest {
	return RegisterRequest{
		Label:       label,
		TargetCount: 30,
		IntervalMS:  500,
		Wait:        true,
		Retrain:     true,
		FaceOnly:    true,
	}
}

type RegisterResult struct {
	OK         bool     `json:"ok"`
	Saved      []string `json:"saved"`
	Count      int      `json:"count"`
	Running    bool     `json:"running"`
	TimeoutHit bool     `json:"timeout_hit"`
	Labels     []string `json:"labels,omitempty"`
	Error      string   `json:"error,omitempty"`
	// Accepted is set when the box answered 202: capture is still running.
	Accepted bool `json:"accepted"`
}

// Register asks the box to capture training images for a label. It returns
// ErrBusy when another capture is in progress.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		return nil, ErrEmptyLabel
	}
	if req.TargetCount <= 0 {
		req.TargetCount = 30
	}
	if req.IntervalMS <= 0 {
		req.IntervalMS = 500
	}

	var result RegisterResult
	status, err := c.do(ctx, c.registerTimeout, http.MethodPost, "/recog/register", nil, req, &result)
	if err != nil {
		return nil, err
	}
	result.Accepted = status == http.StatusAccepted
	return &result, nil
}

type Health struct {
	OK          bool     `json:"ok"`
	Camera      any      `json:"camera"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	FPS         float64  `json:"fps"`
	Quality     int      `json:"quality"`
	Boundary    string   `json:"boundary"`
	Recognition bool     `json:"recognition"`
	Labels      []string `json:"labels"`
	Threshold   float64  `json:"threshold"`
}

// Health reports the box status. A 503 means the box has no camera frame
// yet and is reported as OK false rather than an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	status, err := c.do(ctx, c.labelsTimeout, http.MethodGet, "/health", nil, nil, &h)
	if status == http.StatusServiceUnavailable {
		return &Health{OK: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

type labelsMutation struct {
	OK     bool     `json:"ok"`
	Labels []string `json:"labels"`
}

// Reload retrains the recognizer from the images on disk.
func (c *Client) Reload(ctx context.Context) ([]string, error) {
	var resp labelsMutation
	if _, err := c.do(ctx, c.registerTimeout, http.MethodPost, "/recog/reload", nil, nil, &resp); err != nil {
		return nil, err
	}
	return cleanLabels(resp.Labels), nil
}

// Delete removes a label and its training images. It returns the remaining
// labels.
func (c *Client) Delete(ctx context.Context, label string) ([]string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}
	var resp labelsMutation
	q := url.Values{"label": {label}}
	if _, err := c.do(ctx, c.registerTimeout, http.MethodPost, "/recog/delete", q, nil, &resp); err != nil {
		return nil, err
	}
	return cleanLabels(resp.Labels), nil
}

// do sends one request and decodes a 2xx JSON reply into out. The status
// code is returned whenever a response arrived.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, query url.Values, body, out any) (int, error) {
	if c.baseURL == "" {
		return 0, ErrNoBaseURL
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return resp.StatusCode, ErrBusy
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return strings.TrimSpace(payload.Error)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
