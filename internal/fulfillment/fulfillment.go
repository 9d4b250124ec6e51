// Package fulfillment submits confirmed orders to the external
// fulfillment collaborator over HTTP. Transient failures surface as
// errors; the job layer owns retries and backoff.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"order-processing-service/internal/consul"

	consulapi "github.com/hashicorp/consul/api"
)

// Submission is the payload the fulfillment endpoint accepts.
type Submission struct {
	OrderID  string           `json:"order_id"`
	UserID   string           `json:"user_id"`
	Items    []SubmissionItem `json:"items"`
	Total    int64            `json:"total"`
	Currency string           `json:"currency"`
}

type SubmissionItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

type submitResponse struct {
	FulfillmentID string `json:"fulfillment_id"`
}

type Client struct {
	consulClient *consulapi.Client
	serviceName  string
	httpClient   *http.Client

	// baseURL bypasses consul discovery when set (tests, fixed endpoint)
	baseURL string
}

func NewClient(consulClient *consulapi.Client, serviceName string) *Client {
	return &Client{
		consulClient: consulClient,
		serviceName:  serviceName,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithBaseURL builds a client bound to a fixed endpoint.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit posts the order to the fulfillment endpoint and returns the
// fulfillment identifier.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) {
	base := c.baseURL
	if base == "" {
		address, port, err := consul.GetServiceAddress(c.consulClient, c.serviceName)
		if err != nil {
			return "", fmt.Errorf("fulfillment service unavailable: %w", err)
		}
		base = fmt.Sprintf("http://%s:%d", address, port)
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/fulfillments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit order %s: %w", sub.OrderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("fulfillment endpoint returned %s for order %s", resp.Status, sub.OrderID)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode fulfillment response: %w", err)
	}
	if out.FulfillmentID == "" {
		return "", fmt.Errorf("fulfillment endpoint returned empty id for order %s", sub.OrderID)
	}
	return out.FulfillmentID, nil
}
