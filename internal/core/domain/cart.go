package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StorageName is the fixed name under which cart snapshots are persisted.
const StorageName = "cart-storage"

type Variant struct {
	VariantID int64 `json:"variantId"`
	Quantity  int   `json:"quantity"`
}

type LineItem struct {
	ID      int64           `json:"id"` // product id
	Name    string          `json:"name"`
	Image   string          `json:"image"`
	Price   decimal.Decimal `json:"price"` // unit price
	Variant Variant         `json:"variant"`
}

// CartState is the persisted aggregate. Version increases by one on every applied
// mutation and guards the durable copy against stale writers.
type CartState struct {
	Cart             []LineItem `json:"cart"`
	CheckoutProgress Phase      `json:"checkoutProgress"`
	CartOpen         bool       `json:"cartOpen"`
	Version          int64      `json:"version"`

	// CheckoutID names the checkout started by the last move to the payment
	// page. It is the payment idempotency key and is cleared on confirmation.
	CheckoutID string `json:"checkoutId,omitempty"`
}

func NewCartState() CartState {
	return CartState{
		Cart:             []LineItem{},
		CheckoutProgress: PhaseCart,
	}
}

// StorageKey qualifies StorageName with a session so every browser session
// owns exactly one durable snapshot.
func StorageKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", StorageName, sessionID)
}

func (s CartState) IsEmpty() bool {
	return len(s.Cart) == 0
}

// ItemCount is the badge count: the sum of all line-item quantities.
func (s CartState) ItemCount() int {
	count := 0
	for _, item := range s.Cart {
		count += item.Variant.Quantity
	}
	return count
}

// Find returns the line item holding variantID.
func (s CartState) Find(variantID int64) (LineItem, bool) {
	for _, item := range s.Cart {
		if item.Variant.VariantID == variantID {
			return item, true
		}
	}
	return LineItem{}, false
}

// Clone returns a deep copy; line items are values so copying the slice suffices.
func (s CartState) Clone() CartState {
	out := s
	out.Cart = make([]LineItem, len(s.Cart))
	copy(out.Cart, s.Cart)
	return out
}
