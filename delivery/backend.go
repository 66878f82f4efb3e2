package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/internal/retry"
)

// BackendConfig contains emergency backend settings
type BackendConfig struct {
	URL     string
	Token   string        // sent as Bearer token when set
	Timeout time.Duration // per request
	Retry   retry.Config
}

// BackendSink attaches a confirmed grid to the emergency request backend.
// 5xx responses and transport errors are retried; 4xx are not.
type BackendSink struct {
	cfg    BackendConfig
	client *http.Client
}

// backendRequest is the JSON body posted to the backend.
type backendRequest struct {
	CaptureID       string    `json:"capture_id"`
	InstanceID      string    `json:"instance_id"`
	CapturedAt      time.Time `json:"captured_at"`
	Image           string    `json:"image"` // data:image/jpeg;base64,...
	FramesOK        int       `json:"frames_ok"`
	FramesTotal     int       `json:"frames_total"`
	DurationSeconds float64   `json:"duration_s"`
	DurationAssumed bool      `json:"duration_assumed"`
}

// NewBackendSink validates cfg.
func NewBackendSink(cfg BackendConfig) (*BackendSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("delivery: backend url must be absolute http(s), got %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.DefaultBackoff()
	}
	return &BackendSink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements Sink
func (b *BackendSink) Name() string { return "backend" }

// Deliver implements Sink
func (b *BackendSink) Deliver(ctx context.Context, c *Capture) error {
	body, err := json.Marshal(backendRequest{
		CaptureID:       c.ID,
		InstanceID:      c.InstanceID,
		CapturedAt:      c.CapturedAt.UTC(),
		Image:           extract.DataURL(c.JPEG),
		FramesOK:        c.FramesOK,
		FramesTotal:     c.FramesTotal,
		DurationSeconds: c.DurationSeconds,
		DurationAssumed: c.DurationAssumed,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(ctx, b.cfg.Retry, func(ctx context.Context, attempt int) error {
		err := b.post(ctx, body)
		if err != nil {
			slog.Warn("delivery: backend post failed",
				"attempt", attempt,
				"max_attempts", b.cfg.Retry.MaxAttempts,
				"capture_id", c.ID,
				"error", err,
			)
		}
		return err
	})
}

func (b *BackendSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("backend returned %s", resp.Status)
	default:
		return retry.Permanent(fmt.Errorf("backend rejected capture: %s", resp.Status))
	}
}

// Close implements Sink
func (b *BackendSink) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
