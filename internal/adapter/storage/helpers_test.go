package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func sampleSnapshot(version int64) domain.CartState {
	return domain.CartState{
		Cart: []domain.LineItem{
			{
				ID:      10,
				Name:    "Linen shirt",
				Image:   "https://cdn.example.com/shirt.png",
				Price:   decimal.RequireFromString("60.17"),
				Variant: domain.Variant{VariantID: 101, Quantity: 2},
			},
			{
				ID:      11,
				Name:    "Canvas tote",
				Image:   "https://cdn.example.com/tote.png",
				Price:   decimal.NewFromInt(5),
				Variant: domain.Variant{VariantID: 111, Quantity: 1},
			},
		},
		CheckoutProgress: domain.PhasePayment,
		CartOpen:         true,
		Version:          version,
	}
}

func assertSnapshotEqual(t *testing.T, want, got domain.CartState) {
	t.Helper()
	if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
