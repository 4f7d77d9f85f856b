package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(variantID int64, quantity int, price int64) LineItem {
	return LineItem{
		ID:      variantID * 10,
		Name:    "item",
		Image:   "https://cdn.example.com/item.png",
		Price:   decimal.NewFromInt(price),
		Variant: Variant{VariantID: variantID, Quantity: quantity},
	}
}

func TestReduce_AddMergesByVariant(t *testing.T) {
	state := NewCartState()
	state = Reduce(state, AddToCart(item(1, 1, 20)))
	state = Reduce(state, AddToCart(item(1, 2, 20)))

	require.Len(t, state.Cart, 1)
	assert.Equal(t, 3, state.Cart[0].Variant.Quantity)
}

func TestReduce_AddSumsAllQuantities(t *testing.T) {
	deltas := []int{1, 4, 2, 7, 1}

	state := NewCartState()
	sum := 0
	for _, d := range deltas {
		state = Reduce(state, AddToCart(item(9, d, 3)))
		sum += d
	}

	require.Len(t, state.Cart, 1)
	assert.Equal(t, sum, state.Cart[0].Variant.Quantity)
}

func TestReduce_AddKeepsFirstMetadata(t *testing.T) {
	first := item(1, 1, 20)
	first.Name = "Blue Shirt"

	later := item(1, 1, 25)
	later.Name = "Blue Shirt (sale)"
	later.Image = "https://cdn.example.com/other.png"

	state := Reduce(Reduce(NewCartState(), AddToCart(first)), AddToCart(later))

	require.Len(t, state.Cart, 1)
	got := state.Cart[0]
	assert.Equal(t, "Blue Shirt", got.Name)
	assert.Equal(t, first.Image, got.Image)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, got.Variant.Quantity)
}

func TestReduce_VariantsOfSameProductAreDistinct(t *testing.T) {
	a := item(1, 1, 10)
	b := item(2, 1, 10)
	b.ID = a.ID

	state := Reduce(Reduce(NewCartState(), AddToCart(a)), AddToCart(b))

	require.Len(t, state.Cart, 2)
	assert.Equal(t, int64(1), state.Cart[0].Variant.VariantID)
	assert.Equal(t, int64(2), state.Cart[1].Variant.VariantID)
}

func TestReduce_AddAppendsInInsertionOrder(t *testing.T) {
	state := NewCartState()
	for _, id := range []int64{3, 1, 2} {
		state = Reduce(state, AddToCart(item(id, 1, 1)))
	}
	state = Reduce(state, AddToCart(item(1, 1, 1)))

	ids := make([]int64, 0, len(state.Cart))
	for _, it := range state.Cart {
		ids = append(ids, it.Variant.VariantID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestReduce_NonPositiveDeltaIsNoop(t *testing.T) {
	state := Reduce(NewCartState(), AddToCart(item(1, 2, 5)))

	tests := []struct {
		name   string
		action Action
	}{
		{"add zero", AddToCart(item(1, 0, 5))},
		{"add negative", AddToCart(item(1, -3, 5))},
		{"add zero new variant", AddToCart(item(2, 0, 5))},
		{"remove zero", RemoveFromCart(item(1, 0, 5))},
		{"remove negative", RemoveFromCart(item(1, -1, 5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Reduce(state, tt.action)
			require.Len(t, next.Cart, 1)
			assert.Equal(t, 2, next.Cart[0].Variant.Quantity)
		})
	}
}

func TestReduce_Remove(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		delta     int
		wantItems int
		wantQty   int
	}{
		{"to positive remainder", 5, 2, 1, 3},
		{"to exactly zero", 1, 1, 0, 0},
		{"below zero", 2, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Reduce(NewCartState(), AddToCart(item(5, tt.start, 4)))
			state = Reduce(state, RemoveFromCart(item(5, tt.delta, 4)))

			require.Len(t, state.Cart, tt.wantItems)
			if tt.wantItems == 1 {
				assert.Equal(t, tt.wantQty, state.Cart[0].Variant.Quantity)
			}
		})
	}
}

func TestReduce_RemoveUnknownVariantIsNoop(t *testing.T) {
	state := Reduce(NewCartState(), AddToCart(item(1, 1, 4)))
	next := Reduce(state, RemoveFromCart(item(42, 1, 4)))

	assert.Equal(t, state.Cart, next.Cart)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	state := Reduce(NewCartState(), AddToCart(item(1, 1, 4)))

	_ = Reduce(state, AddToCart(item(1, 5, 4)))
	_ = Reduce(state, RemoveFromCart(item(1, 1, 4)))

	require.Len(t, state.Cart, 1)
	assert.Equal(t, 1, state.Cart[0].Variant.Quantity)
}

func TestReduce_ClearKeepsPhase(t *testing.T) {
	state := Reduce(NewCartState(), AddToCart(item(1, 1, 4)))
	state = Reduce(state, SetCheckoutProgress(PhasePayment))
	state = Reduce(state, ClearCart())

	assert.True(t, state.IsEmpty())
	assert.Equal(t, PhasePayment, state.CheckoutProgress)
}

func TestReduce_CheckoutSequence(t *testing.T) {
	state := NewCartState()
	state = Reduce(state, SetCheckoutProgress(PhasePayment))
	state = Reduce(state, SetCheckoutProgress(PhaseConfirmation))
	state = Reduce(state, ClearCart())
	state = Reduce(state, SetCheckoutProgress(PhaseCart))

	assert.True(t, state.IsEmpty())
	assert.Equal(t, PhaseCart, state.CheckoutProgress)
}

func TestReduce_StartCheckoutKeepsIDUntilConfirmation(t *testing.T) {
	state := Reduce(NewCartState(), StartCheckout("co-1"))
	assert.Equal(t, PhasePayment, state.CheckoutProgress)
	assert.Equal(t, "co-1", state.CheckoutID)

	// cancelling and starting again reuses the open checkout
	state = Reduce(state, SetCheckoutProgress(PhaseCart))
	state = Reduce(state, StartCheckout("co-2"))
	assert.Equal(t, "co-1", state.CheckoutID)

	state = Reduce(state, SetCheckoutProgress(PhaseConfirmation))
	assert.Empty(t, state.CheckoutID)

	state = Reduce(state, StartCheckout("co-3"))
	assert.Equal(t, "co-3", state.CheckoutID)
}

func TestReduce_SetCartOpen(t *testing.T) {
	state := Reduce(NewCartState(), SetCartOpen(true))
	assert.True(t, state.CartOpen)

	state = Reduce(state, SetCartOpen(false))
	assert.False(t, state.CartOpen)
}

func TestCartState_ItemCount(t *testing.T) {
	state := NewCartState()
	state = Reduce(state, AddToCart(item(1, 2, 4)))
	state = Reduce(state, AddToCart(item(2, 3, 4)))

	assert.Equal(t, 5, state.ItemCount())

	found, ok := state.Find(2)
	require.True(t, ok)
	assert.Equal(t, 3, found.Variant.Quantity)

	_, ok = state.Find(7)
	assert.False(t, ok)
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "cart-storage:abc", StorageKey("abc"))
}
