package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists the order and its items in one transaction and
	// returns the assigned order id
	CreateOrder(ctx context.Context, order domain.Order) (int64, error)

	// ListOrders returns the orders of a user, newest first
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
}
