package notify

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

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

const (
	HeaderSignature = "X-Rollcall-Signature"
	HeaderEvent     = "X-Rollcall-Event"

	webhookTimeout    = 10 * time.Second
	webhookMaxRetries = 3
)

// WebhookPublisher POSTs each attendance event as signed JSON. Failed
// deliveries are retried with exponential backoff until the context ends.
type WebhookPublisher struct {
	url     string
	secret  string
	client  *http.Client
	backoff func(attempt int) time.Duration
	logger  *slog.Logger
}

func NewWebhookPublisher(rawURL, secret string, logger *slog.Logger) (*WebhookPublisher, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", rawURL)
	}

	return &WebhookPublisher{
		url:    rawURL,
		secret: secret,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
		logger: logger.With("component", "webhook"),
	}, nil
}

func (p *WebhookPublisher) PublishAttendance(ctx context.Context, record *domain.AttendanceRecord) error {
	event := NewAttendanceEvent(record)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= webhookMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery abandoned after %d attempts: %w", attempt, lastErr)
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		lastErr = p.send(ctx, event.Type, payload)
		if lastErr == nil {
			return nil
		}

		p.logger.Warn("webhook delivery failed",
			"attempt", attempt+1,
			"record_id", event.RecordID,
			"error", lastErr,
		)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", webhookMaxRetries+1, lastErr)
}

func (p *WebhookPublisher) send(ctx context.Context, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(p.secret, payload))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", "Rollcall-Webhook/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}

func (p *WebhookPublisher) Close() {
	p.client.CloseIdleConnections()
}
