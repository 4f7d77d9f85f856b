package service

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

// Mock CartRepository
type mockCartRepo struct {
	mu        sync.Mutex
	snapshots map[string]domain.CartState
	saves     int
	saveErr   error
	loadErr   error
	loads     int
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{snapshots: make(map[string]domain.CartState)}
}

func (m *mockCartRepo) Save(ctx context.Context, key string, snapshot domain.CartState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if stored, ok := m.snapshots[key]; ok && stored.Version >= snapshot.Version {
		return port.ErrVersionConflict
	}
	m.snapshots[key] = snapshot.Clone()
	return nil
}

func (m *mockCartRepo) Load(ctx context.Context, key string) (domain.CartState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads++
	if m.loadErr != nil {
		return domain.CartState{}, false, m.loadErr
	}
	s, ok := m.snapshots[key]
	return s.Clone(), ok, nil
}

func (m *mockCartRepo) stored(key string) (domain.CartState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[key]
	return s, ok
}

// Mock PaymentGateway
type mockPaymentGateway struct {
	mu       sync.Mutex
	requests []domain.PaymentRequest
	result   domain.PaymentResult
	err      error
	block    chan struct{}
	entered  chan struct{}
}

func (m *mockPaymentGateway) CreatePaymentIntent(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if m.entered != nil {
		close(m.entered)
	}
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.result, m.err
}

func (m *mockPaymentGateway) calls() []domain.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentRequest(nil), m.requests...)
}

// Mock OrderRepository
type mockOrderRepo struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	order.ID = int64(len(m.orders) + 1)
	m.orders = append(m.orders, order)
	return order.ID, nil
}

func (m *mockOrderRepo) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Mock NotificationPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.OrderConfirmed
	err    error
}

func (m *mockPublisher) PublishOrderConfirmed(ctx context.Context, event domain.OrderConfirmed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

var errStorageDown = errors.New("storage down")

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func newTestStore(repo port.CartRepository) *CartStore {
	return NewCartStore(domain.StorageKey("session-1"), domain.NewCartState(), repo, zerolog.Nop(), testMetrics())
}

func newTestCheckout(payments port.PaymentGateway, orders port.OrderRepository) *CheckoutService {
	return NewCheckoutService(payments, orders, "usd", 16, noop.NewTracerProvider().Tracer("test"), zerolog.Nop(), testMetrics())
}

func lineItem(variantID int64, quantity int, price string) domain.LineItem {
	return domain.LineItem{
		ID:      variantID * 100,
		Name:    "product",
		Image:   "https://cdn.example.com/p.png",
		Price:   decimal.RequireFromString(price),
		Variant: domain.Variant{VariantID: variantID, Quantity: quantity},
	}
}

func succeeded(secret string) domain.PaymentResult {
	return domain.PaymentResult{Success: &domain.PaymentSuccess{ClientSecretID: secret, User: "buyer@example.com"}}
}
