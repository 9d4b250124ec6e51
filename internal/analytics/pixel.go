// Package analytics reports checkout and purchase events to the external
// ad-platform pixel. Failures are swallowed entirely; tracking must never
// surface an error to the order flow.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"order-processing-service/pkg/logkey"
)

type Conf struct {
	pixelURL   string
	httpClient *http.Client
}

func NewConf(pixelURL string) *Conf {
	return &Conf{
		pixelURL:   pixelURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// PurchasePayload is the pixel payload for checkout/purchase tracking.
type PurchasePayload struct {
	Event    string      `json:"event"`
	OrderID  string      `json:"order_id"`
	UserID   string      `json:"user_id"`
	Items    []PixelItem `json:"items"`
	Total    int64       `json:"total"`
	Currency string      `json:"currency"`
}

type PixelItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Track fires the pixel. All errors end here as logs.
func (c *Conf) Track(ctx context.Context, payload PurchasePayload) {
	if c.pixelURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("pixel payload marshal failed", slog.String(logkey.ERROR, err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pixelURL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("pixel request build failed", slog.String(logkey.ERROR, err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("pixel tracking failed",
			slog.String(logkey.OrderID, payload.OrderID), slog.String(logkey.ERROR, err.Error()))
		return
	}
	resp.Body.Close()
}
