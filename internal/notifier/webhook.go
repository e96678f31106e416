package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pulseboard/internal/models"
)

// WebhookSink POSTs alert events as JSON to a generic HTTP target. This is
// the seam where push services (Pushover and friends) plug in; the concrete
// client lives outside the engine.
type WebhookSink struct {
	url        string
	client     *http.Client
	maxRetries int
}

// NewWebhookSink creates an HTTP webhook sink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Send delivers the event, retrying transient failures with backoff.
func (s *WebhookSink) Send(ctx context.Context, ev models.AlertEvent) error {
	payload, err := json.Marshal(map[string]interface{}{
		"alert": ev,
		"text": fmt.Sprintf("[%s] rule %s %s: %s",
			ev.Level, ev.RuleID, ev.State, ev.Message),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}
		if lastErr = s.post(ctx, payload); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Close implements Sink.
func (s *WebhookSink) Close() error { return nil }
