package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	full := Guard{}
	empty := Guard{CartEmpty: true}
	paid := Guard{PaymentConfirmed: true}

	tests := []struct {
		name    string
		from    Phase
		to      Phase
		guard   Guard
		wantErr error
	}{
		{"cart to payment", PhaseCart, PhasePayment, full, nil},
		{"cart to payment with empty cart", PhaseCart, PhasePayment, empty, ErrEmptyCart},
		{"payment to confirmation after payment", PhasePayment, PhaseConfirmation, paid, nil},
		{"payment to confirmation before payment", PhasePayment, PhaseConfirmation, full, ErrIllegalTransition},
		{"confirmation to cart", PhaseConfirmation, PhaseCart, empty, nil},
		{"payment cancelled back to cart", PhasePayment, PhaseCart, full, nil},
		{"cart stays on cart", PhaseCart, PhaseCart, empty, nil},
		{"skip payment", PhaseCart, PhaseConfirmation, paid, ErrIllegalTransition},
		{"confirmation back to payment", PhaseConfirmation, PhasePayment, full, ErrIllegalTransition},
		{"payment to payment", PhasePayment, PhasePayment, full, ErrIllegalTransition},
		{"unknown target", PhaseCart, Phase("shipping-page"), full, ErrUnknownPhase},
		{"unknown source", Phase(""), PhaseCart, full, ErrUnknownPhase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanTransition(tt.from, tt.to, tt.guard)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCanTransition_EmptyCartIsAlsoIllegal(t *testing.T) {
	err := CanTransition(PhaseCart, PhasePayment, Guard{CartEmpty: true})
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutProgress_FullCycle(t *testing.T) {
	m := NewCheckoutProgress(PhaseCart)

	require.NoError(t, m.Transition(PhasePayment, Guard{}))
	require.NoError(t, m.Transition(PhaseConfirmation, Guard{PaymentConfirmed: true}))
	require.NoError(t, m.Transition(PhaseCart, Guard{CartEmpty: true}))
	assert.Equal(t, PhaseCart, m.Current())

	// the machine has no terminal state
	require.NoError(t, m.Transition(PhasePayment, Guard{}))
	assert.Equal(t, PhasePayment, m.Current())
}

func TestCheckoutProgress_RejectedTransitionKeepsPhase(t *testing.T) {
	m := NewCheckoutProgress(PhasePayment)

	err := m.Transition(PhaseConfirmation, Guard{})
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, PhasePayment, m.Current())
}

func TestNewCheckoutProgress_InvalidDefaultsToCart(t *testing.T) {
	assert.Equal(t, PhaseCart, NewCheckoutProgress(Phase("bogus")).Current())
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("payment-page")
	require.NoError(t, err)
	assert.Equal(t, PhasePayment, p)

	_, err = ParsePhase("checkout")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestPhase_Step(t *testing.T) {
	assert.Equal(t, 0, PhaseCart.Step())
	assert.Equal(t, 1, PhasePayment.Step())
	assert.Equal(t, 2, PhaseConfirmation.Step())
}

func TestNewPaymentRequest(t *testing.T) {
	state := NewCartState()
	state = Reduce(state, AddToCart(LineItem{
		ID: 3, Name: "Mug", Image: "https://cdn.example.com/mug.png",
		Price:   decimal.RequireFromString("12.50"),
		Variant: Variant{VariantID: 31, Quantity: 2},
	}))
	state = Reduce(state, AddToCart(LineItem{
		ID: 4, Name: "Tee", Image: "https://cdn.example.com/tee.png",
		Price:   decimal.RequireFromString("20"),
		Variant: Variant{VariantID: 41, Quantity: 1},
	}))

	req := NewPaymentRequest(state, "", "user-1")

	assert.Equal(t, int64(4500), req.Amount)
	assert.Equal(t, DefaultCurrency, req.Currency)
	assert.Equal(t, "user-1", req.UserID)
	require.Len(t, req.LineItems, 2)
	assert.Equal(t, PaymentLineItem{
		Quantity: 2, ProductID: 3, Title: "Mug",
		Price: state.Cart[0].Price, Image: "https://cdn.example.com/mug.png",
	}, req.LineItems[0])
}

func TestNewPaymentRequest_ReflectsLatestSnapshot(t *testing.T) {
	state := Reduce(NewCartState(), AddToCart(item(1, 1, 10)))
	first := NewPaymentRequest(state, "eur", "")

	state = Reduce(state, AddToCart(item(1, 1, 10)))
	second := NewPaymentRequest(state, "eur", "")

	assert.Equal(t, int64(1000), first.Amount)
	assert.Equal(t, int64(2000), second.Amount)
	assert.Equal(t, "eur", second.Currency)
}

func TestNewOrder(t *testing.T) {
	items := []LineItem{item(1, 2, 10), item(2, 1, 5)}

	order := NewOrder("user-1", "pi_123", items)

	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, "pi_123", order.PaymentIntentID)
	assert.Equal(t, OrderStatusSucceeded, order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, []OrderItem{
		{ProductID: 10, ProductVariantID: 1, Quantity: 2},
		{ProductID: 20, ProductVariantID: 2, Quantity: 1},
	}, order.Items)
}

func TestPaymentResult_OK(t *testing.T) {
	assert.True(t, PaymentResult{Success: &PaymentSuccess{ClientSecretID: "cs"}}.OK())
	assert.False(t, PaymentResult{Error: "card declined"}.OK())
	assert.False(t, PaymentResult{}.OK())
}
