// Package kalshi implements the secondary-venue executor. Requests carry a
// static API-key header; the venue's own status vocabulary is normalized into
// the shared order status enum.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/transport"
)

// Client is the REST executor for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      transport.RetryPolicy
}

// NewClient creates a secondary-venue executor.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKey string, retry transport.RetryPolicy) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry,
	}
}

// Venue identifies this executor as the secondary venue.
func (c *Client) Venue() domain.Venue { return domain.VenueKalshi }

// SubmitOrder posts the order and returns the venue-assigned order ID.
func (c *Client) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	body := map[string]any{
		"ticker": o.MarketPair,
		"action": string(o.Side),
		"side":   "yes",
		"count":  int64(math.Round(o.Size)),
		"type":   "limit",
		// Kalshi prices are integer cents. Round rather than truncate:
		// 0.29*100 is 28.999... in binary.
		"yes_price": int64(math.Round(o.Price * 100)),
	}

	var resp struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		raw, reqErr := c.doRequest(ctx, http.MethodPost, "/portfolio/orders", body)
		if reqErr != nil {
			return reqErr
		}
		return json.Unmarshal(raw, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: place order: %w", err)
	}
	if resp.Order.Status == "canceled" {
		return "", fmt.Errorf("kalshi: order was immediately cancelled")
	}
	return resp.Order.OrderID, nil
}

// PollOrderStatus reads the current order state and normalizes the venue
// vocabulary.
func (c *Client) PollOrderStatus(ctx context.Context, externalID string) (domain.OrderStatus, error) {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(externalID))

	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		raw, reqErr := c.doRequest(ctx, http.MethodGet, path, nil)
		if reqErr != nil {
			return reqErr
		}
		return json.Unmarshal(raw, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: poll order %s: %w", externalID, err)
	}
	return NormalizeStatus(resp.Order.Status), nil
}

// NormalizeStatus maps Kalshi's status vocabulary onto the shared enum.
func NormalizeStatus(s string) domain.OrderStatus {
	switch s {
	case "pending":
		return domain.OrderStatusPending
	case "resting":
		return domain.OrderStatusSubmitted
	case "executed":
		return domain.OrderStatusFilled
	case "canceled", "cancelled":
		return domain.OrderStatusCancelled
	case "expired":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusFailed
	}
}

// doRequest builds, sends, and reads one API request with the API-key header.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("kalshi: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kalshi: status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
