package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/port"
)

type CartView struct {
	Items            []domain.LineItem `json:"items"`
	Total            string            `json:"total"`
	ItemCount        int               `json:"itemCount"`
	CheckoutProgress domain.Phase      `json:"checkoutProgress"`
	Step             int               `json:"step"`
	CartOpen         bool              `json:"cartOpen"`
	Version          int64             `json:"version"`
}

func newCartView(state domain.CartState) CartView {
	return CartView{
		Items:            state.Cart,
		Total:            domain.ComputeTotal(state.Cart).StringFixed(2),
		ItemCount:        state.ItemCount(),
		CheckoutProgress: state.CheckoutProgress,
		Step:             state.CheckoutProgress.Step(),
		CartOpen:         state.CartOpen,
		Version:          state.Version,
	}
}

type PaymentView struct {
	Amount    int64                    `json:"amount"`
	Currency  string                   `json:"currency"`
	LineItems []domain.PaymentLineItem `json:"cart"`
	Cart      CartView                 `json:"state"`
}

type OrderView struct {
	ID              int64              `json:"id"`
	UserID          string             `json:"userId"`
	Total           decimal.Decimal    `json:"total"`
	Status          domain.OrderStatus `json:"status"`
	ReceiptURL      string             `json:"receiptUrl,omitempty"`
	PaymentIntentID string             `json:"paymentIntentId"`
	Items           []OrderItemView    `json:"items"`
	CreatedAt       time.Time          `json:"createdAt"`
}

type OrderItemView struct {
	ProductID        int64 `json:"productId"`
	ProductVariantID int64 `json:"productVariantId"`
	Quantity         int   `json:"quantity"`
}

func newOrderView(o domain.Order) OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemView{
			ProductID:        it.ProductID,
			ProductVariantID: it.ProductVariantID,
			Quantity:         it.Quantity,
		})
	}
	return OrderView{
		ID:              o.ID,
		UserID:          o.UserID,
		Total:           o.Total,
		Status:          o.Status,
		ReceiptURL:      o.ReceiptURL,
		PaymentIntentID: o.PaymentIntentID,
		Items:           items,
		CreatedAt:       o.CreatedAt,
	}
}

// cartOps is the transport-neutral surface shared by the HTTP and gRPC handlers.
type cartOps struct {
	registry *service.SessionRegistry
	checkout *service.CheckoutService
	log      zerolog.Logger
}

// mutate runs fn against the session's store. A version conflict means another
// instance wrote first: the store is reloaded and the conflict is returned so the
// client can retry against fresh state.
func (o *cartOps) mutate(ctx context.Context, sessionID string, fn func(*service.CartStore) error) (domain.CartState, error) {
	store, err := o.registry.Get(ctx, sessionID)
	if err != nil {
		return domain.CartState{}, err
	}

	if err := fn(store); err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			if reloadErr := store.Reload(ctx); reloadErr != nil {
				o.log.Error().Err(reloadErr).Str("session_id", sessionID).Msg("failed to reload cart after conflict")
			}
		}
		return store.Snapshot(), err
	}
	return store.Snapshot(), nil
}

// cart reads without opening a store, so anonymous reads cost no memory.
func (o *cartOps) cart(ctx context.Context, sessionID string) (domain.CartState, error) {
	return o.registry.Peek(ctx, sessionID)
}

func (o *cartOps) beginPayment(ctx context.Context, sessionID, userID string) (domain.PaymentRequest, domain.CartState, error) {
	var req domain.PaymentRequest
	state, err := o.mutate(ctx, sessionID, func(s *service.CartStore) error {
		var err error
		req, err = o.checkout.BeginPayment(ctx, s, userID)
		return err
	})
	return req, state, err
}

func (o *cartOps) confirmPayment(ctx context.Context, sessionID, userID string) (domain.Order, domain.CartState, error) {
	var order domain.Order
	state, err := o.mutate(ctx, sessionID, func(s *service.CartStore) error {
		var err error
		order, err = o.checkout.ConfirmPayment(ctx, s, userID)
		return err
	})
	return order, state, err
}

func validateItem(item domain.LineItem) error {
	if item.Variant.VariantID == 0 {
		return fmt.Errorf("%w: variant id is required", errInvalidRequest)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", errInvalidRequest)
	}
	return nil
}
