package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

func sampleRequest() domain.PaymentRequest {
	state := domain.NewCartState()
	state.Cart = []domain.LineItem{{
		ID:      7,
		Name:    "Wool scarf",
		Image:   "https://cdn.example.com/scarf.png",
		Price:   decimal.RequireFromString("22.50"),
		Variant: domain.Variant{VariantID: 70, Quantity: 2},
	}}
	req := domain.NewPaymentRequest(state, "usd", "user-9")
	req.IdempotencyKey = "idem-1"
	return req
}

func TestCreatePaymentIntent_Success(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotKey = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":{"clientSecretId":"pi_1_secret","user":"buyer@example.com"}}`))
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, time.Second)
	result, err := gateway.CreatePaymentIntent(context.Background(), sampleRequest())
	require.NoError(t, err)

	require.True(t, result.OK())
	assert.Equal(t, "pi_1_secret", result.Success.ClientSecretID)
	assert.Equal(t, "idem-1", gotKey)

	assert.Equal(t, float64(4500), gotBody["amount"])
	assert.Equal(t, "usd", gotBody["currency"])
	assert.Equal(t, "user-9", gotBody["userId"])
	cart := gotBody["cart"].([]any)
	require.Len(t, cart, 1)
	line := cart[0].(map[string]any)
	assert.Equal(t, float64(7), line["productId"])
	assert.Equal(t, "Wool scarf", line["title"])
	assert.Equal(t, float64(2), line["quantity"])
}

func TestCreatePaymentIntent_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"card declined"}`))
	}))
	defer server.Close()

	result, err := NewHTTPGateway(server.URL, time.Second).CreatePaymentIntent(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, "card declined", result.Error)
}

func TestCreatePaymentIntent_ErrorBodyOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"amount too small"}`))
	}))
	defer server.Close()

	result, err := NewHTTPGateway(server.URL, time.Second).CreatePaymentIntent(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "amount too small", result.Error)
}

func TestCreatePaymentIntent_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"empty result", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewHTTPGateway(server.URL, time.Second).CreatePaymentIntent(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, ErrUnexpectedResponse)
		})
	}
}

func TestCreatePaymentIntent_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewHTTPGateway(server.URL, 50*time.Millisecond).CreatePaymentIntent(context.Background(), sampleRequest())
	assert.Error(t, err)
}
