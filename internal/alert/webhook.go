package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/govtrail/internal/correlation"
)

// EventHeader names the alert type on every delivery.
const EventHeader = "X-Govtrail-Alert"

// Sender posts alerts to webhooks, retrying transport errors and 5xx
// responses with linear backoff. 4xx responses are not retried.
type Sender struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
}

// DefaultSender uses a 5s request timeout and 3 attempts one second apart.
var DefaultSender = &Sender{
	Client:   &http.Client{Timeout: 5 * time.Second},
	Attempts: 3,
	Backoff:  time.Second,
}

// Send delivers event to cfg using DefaultSender.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	return DefaultSender.Send(ctx, cfg, event)
}

// Send delivers one event. The event's correlation id travels in
// X-Correlation-Id so receivers can join it back to the audit trail.
func (s *Sender) Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	client := s.Client
	if client == nil {
		client = DefaultSender.Client
	}
	attempts := max(s.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(time.Duration(attempt) * s.Backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(EventHeader, event.Type)
		if event.CorrelationID != "" {
			req.Header.Set(correlation.HeaderName, correlation.Context{TraceID: event.CorrelationID}.Headers())
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", attempts, lastErr)
}
