package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/logger"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

var (
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrNotAuthenticated   = errors.New("user not authenticated")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// CheckoutService drives a cart through payment, order creation and
// confirmation. Order notifications are handed to a worker pool through a
// bounded queue.
type CheckoutService struct {
	payments port.PaymentGateway
	orders   port.OrderRepository
	currency string

	notifyQueue chan domain.OrderConfirmed
	done        chan struct{}
	closeOnce   sync.Once

	tracer  trace.Tracer
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewCheckoutService(
	payments port.PaymentGateway,
	orders port.OrderRepository,
	currency string,
	queueSize int,
	tracer trace.Tracer,
	log zerolog.Logger,
	m *metrics.Metrics,
) *CheckoutService {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("checkout")
	}
	return &CheckoutService{
		payments:    payments,
		orders:      orders,
		currency:    currency,
		notifyQueue: make(chan domain.OrderConfirmed, queueSize),
		done:        make(chan struct{}),
		tracer:      tracer,
		log:         log.With().Str("component", "checkout").Logger(),
		metrics:     m,
	}
}

// BeginPayment moves cart-page -> payment-page and returns the payment request
// the current cart would produce.
func (s *CheckoutService) BeginPayment(ctx context.Context, store *CartStore, userID string) (domain.PaymentRequest, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.BeginPayment")
	defer span.End()

	if err := store.Transition(ctx, domain.PhasePayment, false); err != nil {
		span.RecordError(err)
		return domain.PaymentRequest{}, err
	}

	req := domain.NewPaymentRequest(store.Snapshot(), s.currency, userID)
	span.SetAttributes(attribute.Int64("payment.amount", req.Amount), attribute.String("payment.currency", req.Currency))
	return req, nil
}

// ConfirmPayment asks the payment collaborator to authorize the current cart.
// On success the order is persisted, the checkout advances to the confirmation
// page and the paid quantities leave the cart. On failure the phase stays on
// the payment page and the cart is untouched.
//
// Every attempt of one checkout sends the same idempotency key. A payment that
// succeeded but whose order could not be saved is remembered, and the next
// attempt only retries the order.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, store *CartStore, userID string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment")
	defer span.End()
	log := logger.Ctx(ctx, s.log).With().Str("cart_key", store.Key()).Logger()

	if userID == "" {
		return domain.Order{}, ErrNotAuthenticated
	}
	if !store.beginConfirm() {
		return domain.Order{}, ErrCheckoutInProgress
	}
	defer store.endConfirm()

	snapshot := store.Snapshot()
	if snapshot.CheckoutProgress != domain.PhasePayment {
		err := fmt.Errorf("%w: confirm payment from %s", domain.ErrIllegalTransition, snapshot.CheckoutProgress)
		span.RecordError(err)
		return domain.Order{}, err
	}

	checkoutID := idempotencyKey(store.Key(), snapshot)
	paid, ok := store.paidFor(checkoutID)
	if ok {
		log.Info().Str("checkout_id", checkoutID).Msg("payment already confirmed, retrying order")
	} else {
		if snapshot.IsEmpty() {
			return domain.Order{}, domain.ErrEmptyCart
		}
		result, err := s.authorize(ctx, snapshot, userID, checkoutID)
		if err != nil {
			return domain.Order{}, err
		}
		paid = paidCheckout{checkoutID: checkoutID, result: result, items: snapshot.Cart}
		store.rememberPaid(paid)
	}

	order := domain.NewOrder(userID, domain.PaymentIntentID(paid.result.Success.ClientSecretID), paid.items)
	orderID, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persistence failed")
		log.Error().Err(err).Str("payment_intent", order.PaymentIntentID).Msg("CRITICAL: payment succeeded but order was not saved")
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	store.forgetPaid()
	order.ID = orderID
	s.metrics.OrderCreated()
	log.Info().Int64("order_id", orderID).Str("total", order.Total.StringFixed(2)).Msg("order created")

	if err := store.settleCheckout(ctx, paid.items); err != nil {
		// the order exists; the cart catches up on the next write
		log.Error().Err(err).Int64("order_id", orderID).Msg("failed to persist settled cart")
	}

	itemCount := 0
	for _, item := range paid.items {
		itemCount += item.Variant.Quantity
	}
	s.enqueue(ctx, domain.OrderConfirmed{
		EventID:         uuid.New().String(),
		OrderID:         orderID,
		UserID:          userID,
		Total:           order.Total,
		PaymentIntentID: order.PaymentIntentID,
		ItemCount:       itemCount,
		ConfirmedAt:     time.Now(),
	})

	return order, nil
}

func (s *CheckoutService) authorize(ctx context.Context, snapshot domain.CartState, userID, key string) (domain.PaymentResult, error) {
	span := trace.SpanFromContext(ctx)
	log := logger.Ctx(ctx, s.log)

	req := domain.NewPaymentRequest(snapshot, s.currency, userID)
	req.IdempotencyKey = key
	span.SetAttributes(
		attribute.Int64("payment.amount", req.Amount),
		attribute.String("payment.currency", req.Currency),
		attribute.String("payment.idempotency_key", req.IdempotencyKey),
	)

	result, err := s.payments.CreatePaymentIntent(ctx, req)
	if err != nil {
		s.metrics.Payment("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment call failed")
		log.Error().Err(err).Msg("payment collaborator call failed")
		return domain.PaymentResult{}, fmt.Errorf("create payment intent: %w", err)
	}
	if !result.OK() {
		s.metrics.Payment("declined")
		span.SetStatus(codes.Error, "payment declined")
		log.Warn().Str("reason", result.Error).Msg("payment declined")
		return domain.PaymentResult{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Error)
	}
	s.metrics.Payment("succeeded")
	return result, nil
}

// idempotencyKey is the checkout id recorded when the payment page was
// entered. Snapshots written before checkout ids existed fall back to a key
// derived from the cart key and version.
func idempotencyKey(cartKey string, snapshot domain.CartState) string {
	if snapshot.CheckoutID != "" {
		return snapshot.CheckoutID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s@%d", cartKey, snapshot.Version))).String()
}

// Acknowledge returns from the confirmation page to the cart page.
func (s *CheckoutService) Acknowledge(ctx context.Context, store *CartStore) error {
	if phase := store.Snapshot().CheckoutProgress; phase != domain.PhaseConfirmation {
		return fmt.Errorf("%w: acknowledge from %s", domain.ErrIllegalTransition, phase)
	}
	return store.Transition(ctx, domain.PhaseCart, false)
}

// Cancel abandons the checkout. The cart contents are kept. Both Cancel and
// Acknowledge are refused while a payment confirmation is in flight.
func (s *CheckoutService) Cancel(ctx context.Context, store *CartStore) error {
	return store.Transition(ctx, domain.PhaseCart, false)
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	return s.orders.ListOrders(ctx, userID)
}

func (s *CheckoutService) enqueue(ctx context.Context, event domain.OrderConfirmed) {
	select {
	case <-s.done:
		s.log.Warn().Int64("order_id", event.OrderID).Msg("order notification dropped: shutting down")
		return
	default:
	}

	select {
	case s.notifyQueue <- event:
	case <-s.done:
		s.log.Warn().Int64("order_id", event.OrderID).Msg("order notification dropped: shutting down")
	case <-ctx.Done():
		s.log.Warn().Int64("order_id", event.OrderID).Msg("order notification dropped: context done")
	}
}

func (s *CheckoutService) NotificationQueue() <-chan domain.OrderConfirmed {
	return s.notifyQueue
}

// RunNotificationWorker publishes queued events until Close is called, then
// drains what is left in the queue. Publish failures are logged; the order
// itself is never rolled back.
func (s *CheckoutService) RunNotificationWorker(id int, publisher port.NotificationPublisher) {
	for {
		select {
		case event := <-s.notifyQueue:
			s.publish(id, publisher, event)
		case <-s.done:
			for {
				select {
				case event := <-s.notifyQueue:
					s.publish(id, publisher, event)
				default:
					return
				}
			}
		}
	}
}

func (s *CheckoutService) publish(id int, publisher port.NotificationPublisher, event domain.OrderConfirmed) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := publisher.PublishOrderConfirmed(ctx, event)
	s.metrics.Notification(err)
	if err != nil {
		s.log.Error().Err(err).Int("worker", id).Int64("order_id", event.OrderID).Msg("failed to publish order notification")
		return
	}
	s.log.Debug().Int("worker", id).Int64("order_id", event.OrderID).Msg("published order notification")
}

// Close stops the workers. Confirmations finishing afterwards still save their
// order; only the notification is dropped.
func (s *CheckoutService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
