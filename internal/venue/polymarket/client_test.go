package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/arbdesk/internal/crypto"
	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/transport"
)

// well-known anvil test key, never used on a live chain
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"live":      domain.OrderStatusSubmitted,
		"delayed":   domain.OrderStatusSubmitted,
		"matched":   domain.OrderStatusFilled,
		"cancelled": domain.OrderStatusCancelled,
		"expired":   domain.OrderStatusExpired,
		"unmatched": domain.OrderStatusFailed,
		"garbage":   domain.OrderStatusFailed,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), "input %q", in)
	}
}

func TestSubmitOrder_SignsPayload(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)

	var got struct {
		Signature string             `json:"signature"`
		Owner     string             `json:"owner"`
		Order     crypto.OrderPayload `json:"order"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"orderID":"0xabc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, signer, transport.RetryPolicy{MaxAttempts: 1})
	id, err := c.SubmitOrder(context.Background(), domain.Order{
		MarketPair: "123456",
		Side:       domain.SideBuy,
		Size:       100,
		Price:      0.55,
	})

	require.NoError(t, err)
	assert.Equal(t, "0xabc", id)
	assert.Equal(t, signer.Address().Hex(), got.Owner)
	assert.Equal(t, signer.Address().Hex(), got.Order.Maker)
	assert.Len(t, got.Signature, 2+65*2) // 0x + 65 bytes hex
	assert.Equal(t, 0, got.Order.Side)
	assert.Equal(t, "55000000", got.Order.MakerAmount)
	assert.Equal(t, "100000000", got.Order.TakerAmount)
}

func TestSubmitOrder_RejectionSurfacesError(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"insufficient balance"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, signer, transport.RetryPolicy{MaxAttempts: 1})
	_, err = c.SubmitOrder(context.Background(), domain.Order{MarketPair: "1", Side: domain.SideSell, Size: 1, Price: 0.5})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}
