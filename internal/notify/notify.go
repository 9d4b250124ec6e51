// Package notify posts admin alerts to a chat webhook. Alerts are
// best-effort: callers log a failed alert and move on, never retry.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Conf struct {
	webhookURL string
	httpClient *http.Client
}

func NewConf(webhookURL string) *Conf {
	return &Conf{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type alertPayload struct {
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Alert posts a flat message+fields payload to the webhook.
func (c *Conf) Alert(ctx context.Context, title string, fields map[string]string) error {
	if c.webhookURL == "" {
		return fmt.Errorf("admin webhook url is not configured")
	}

	body, err := json.Marshal(alertPayload{Title: title, Fields: fields})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %s", resp.Status)
	}
	return nil
}
