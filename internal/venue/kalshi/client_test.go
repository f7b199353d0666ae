package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/transport"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"pending":   domain.OrderStatusPending,
		"resting":   domain.OrderStatusSubmitted,
		"executed":  domain.OrderStatusFilled,
		"canceled":  domain.OrderStatusCancelled,
		"cancelled": domain.OrderStatusCancelled,
		"expired":   domain.OrderStatusExpired,
		"voided":    domain.OrderStatusFailed,
		"":          domain.OrderStatusFailed,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), "input %q", in)
	}
}

func TestSubmitOrder_UsesAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("KALSHI-ACCESS-KEY")
		w.Write([]byte(`{"order":{"order_id":"ord-1","status":"resting"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", transport.RetryPolicy{MaxAttempts: 1})
	id, err := c.SubmitOrder(context.Background(), domain.Order{
		MarketPair: "BTC-100K",
		Side:       domain.SideBuy,
		Size:       10,
		Price:      0.42,
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	assert.Equal(t, "key-123", gotKey)
}

func TestSubmitOrder_PriceRoundsToNearestCent(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"order":{"order_id":"ord-1","status":"resting"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", transport.RetryPolicy{MaxAttempts: 1})

	// 0.29*100 is 28.999... in binary; truncation would undercut the limit
	// price by a cent.
	_, err := c.SubmitOrder(context.Background(), domain.Order{
		MarketPair: "FED-CUT-DEC",
		Side:       domain.SideBuy,
		Size:       100,
		Price:      0.29,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(29), gotBody["yes_price"])
	assert.Equal(t, float64(100), gotBody["count"])
}

func TestSubmitOrder_RateLimitRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"order":{"order_id":"ord-2","status":"resting"}}`))
	}))
	defer srv.Close()

	retry := transport.RetryPolicy{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return errorsIsRateLimited(err) },
	}
	c := NewClient(srv.URL, "key", retry)

	id, err := c.SubmitOrder(context.Background(), domain.Order{MarketPair: "X", Side: domain.SideSell, Size: 1, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "ord-2", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPollOrderStatus_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	retry := transport.RetryPolicy{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return errorsIsRateLimited(err) },
	}
	c := NewClient(srv.URL, "key", retry)

	_, err := c.PollOrderStatus(context.Background(), "ord-3")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func errorsIsRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}
