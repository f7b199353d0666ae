// Package polymarket implements the primary-venue executor. Orders are
// authenticated with an EIP-712 typed signature over the order fields,
// produced by the operator key.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/quantfold/arbdesk/internal/crypto"
	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/transport"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// amountScale converts display price/size into the integer amounts carried in
// the signed payload.
const amountScale = 1e6

// Client is the REST executor for the Polymarket CLOB.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	retry      transport.RetryPolicy
}

// NewClient creates a primary-venue executor.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClient(baseURL string, signer *crypto.Signer, retry transport.RetryPolicy) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		retry:  retry,
	}
}

// Venue identifies this executor as the primary venue.
func (c *Client) Venue() domain.Venue { return domain.VenuePolymarket }

// SubmitOrder signs the order payload and posts it to the venue, returning
// the venue-assigned order ID. Rate-limit rejections are retried under the
// client's policy; a request that may have reached the matching engine is
// never replayed.
func (c *Client) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	wallet := c.signer.Address().Hex()

	makerAmount := int64(math.Round(o.Price * o.Size * amountScale))
	takerAmount := int64(math.Round(o.Size * amountScale))

	sideInt := 0
	if o.Side == domain.SideSell {
		sideInt = 1
	}

	payload := crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", time.Now().UnixNano()),
		Maker:         wallet,
		Signer:        wallet,
		Taker:         zeroAddress,
		TokenID:       o.MarketPair,
		MakerAmount:   fmt.Sprintf("%d", makerAmount),
		TakerAmount:   fmt.Sprintf("%d", takerAmount),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideInt,
		SignatureType: 0,
	}

	signature, err := c.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	body := map[string]any{
		"order":     payload,
		"signature": signature,
		"owner":     wallet,
		"orderType": "FOK",
	}

	var resp struct {
		Success  bool   `json:"success"`
		OrderID  string `json:"orderID"`
		ErrorMsg string `json:"errorMsg"`
	}
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		raw, reqErr := c.doRequest(ctx, http.MethodPost, "/order", body)
		if reqErr != nil {
			return reqErr
		}
		return json.Unmarshal(raw, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("polymarket: post order: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("polymarket: order rejected: %s", resp.ErrorMsg)
	}
	return resp.OrderID, nil
}

// PollOrderStatus reads the venue's view of the order and normalizes the
// status vocabulary into the shared enum.
func (c *Client) PollOrderStatus(ctx context.Context, externalID string) (domain.OrderStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		raw, reqErr := c.doRequest(ctx, http.MethodGet, "/order/"+externalID, nil)
		if reqErr != nil {
			return reqErr
		}
		return json.Unmarshal(raw, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("polymarket: poll order %s: %w", externalID, err)
	}
	return NormalizeStatus(resp.Status), nil
}

// NormalizeStatus maps the CLOB status vocabulary onto the shared enum.
func NormalizeStatus(s string) domain.OrderStatus {
	switch s {
	case "live", "delayed":
		return domain.OrderStatusSubmitted
	case "matched":
		return domain.OrderStatusFilled
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled
	case "expired":
		return domain.OrderStatusExpired
	case "unmatched":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusFailed
	}
}

// doRequest builds, sends, and reads one API request.
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
		return nil, fmt.Errorf("polymarket: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("polymarket: status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
