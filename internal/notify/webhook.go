package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookSink posts alerts as JSON to a URL (push gateway, chat webhook).
type WebhookSink struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	Kind      string  `json:"kind"`
	Anchor    string  `json:"anchor"`
	Magnitude float64 `json:"magnitude"`
	Text      string  `json:"text"`
}

// NewWebhookSink constructs a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert. Any non-2xx response is an error.
func (w *WebhookSink) Send(ctx context.Context, alert Alert) error {
	if w == nil || w.url == "" {
		return errors.New("webhook sink: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		Kind:      string(alert.Kind),
		Anchor:    alert.Anchor.UTC().Format(time.RFC3339),
		Magnitude: alert.Magnitude,
		Text:      alert.Message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: status %d", resp.StatusCode)
	}
	return nil
}
