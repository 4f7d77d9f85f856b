package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type NotificationPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event domain.OrderConfirmed) error
}
