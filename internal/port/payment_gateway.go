package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type PaymentGateway interface {
	// CreatePaymentIntent asks the payment provider to authorize req. A declined
	// payment is reported through PaymentResult.Error, transport failures via err.
	CreatePaymentIntent(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error)
}
