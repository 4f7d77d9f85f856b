package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

// CartStore owns the cart of one session. Every mutation runs the pure reducer
// and then writes the complete snapshot to the repository while still holding
// the lock, so writes reach storage in version order.
type CartStore struct {
	mu    sync.Mutex
	key   string
	state domain.CartState
	repo  port.CartRepository

	// set while a payment confirmation owns the checkout
	confirming bool
	// succeeded payment still waiting for its order
	paid *paidCheckout

	lastUsed atomic.Int64

	log     zerolog.Logger
	metrics *metrics.Metrics
}

const settleAttempts = 3

type paidCheckout struct {
	checkoutID string
	result     domain.PaymentResult
	items      []domain.LineItem
}

func NewCartStore(key string, initial domain.CartState, repo port.CartRepository, log zerolog.Logger, m *metrics.Metrics) *CartStore {
	if initial.Cart == nil {
		initial.Cart = []domain.LineItem{}
	}
	if !initial.CheckoutProgress.Valid() {
		initial.CheckoutProgress = domain.PhaseCart
	}

	s := &CartStore{
		key:     key,
		state:   initial,
		repo:    repo,
		log:     log.With().Str("component", "cart_store").Str("cart_key", key).Logger(),
		metrics: m,
	}
	s.touch()
	return s
}

func (s *CartStore) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *CartStore) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastUsed.Load()))
}

func (s *CartStore) Key() string {
	return s.key
}

// Snapshot returns a copy of the latest state.
func (s *CartStore) Snapshot() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Total is recomputed from the latest line items on every call.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ComputeTotal(s.state.Cart)
}

func (s *CartStore) AddToCart(ctx context.Context, item domain.LineItem) error {
	_, err := s.Dispatch(ctx, domain.AddToCart(item))
	return err
}

func (s *CartStore) RemoveFromCart(ctx context.Context, item domain.LineItem) error {
	_, err := s.Dispatch(ctx, domain.RemoveFromCart(item))
	return err
}

func (s *CartStore) ClearCart(ctx context.Context) error {
	_, err := s.Dispatch(ctx, domain.ClearCart())
	return err
}

// SetCheckoutProgress sets the phase without consulting the transition graph.
// Transports and the checkout flow use Transition instead.
func (s *CartStore) SetCheckoutProgress(ctx context.Context, phase domain.Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPhase, phase)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirming {
		return ErrCheckoutInProgress
	}
	_, err := s.applyLocked(ctx, domain.SetCheckoutProgress(phase))
	return err
}

func (s *CartStore) SetCartOpen(ctx context.Context, open bool) error {
	_, err := s.Dispatch(ctx, domain.SetCartOpen(open))
	return err
}

// Transition moves the checkout phase along the legal graph. paymentConfirmed
// must only be true when the payment collaborator has reported success. While
// a payment confirmation is in flight every transition is refused.
func (s *CartStore) Transition(ctx context.Context, to domain.Phase, paymentConfirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirming {
		return ErrCheckoutInProgress
	}

	action := domain.SetCheckoutProgress(to)
	if to == domain.PhasePayment {
		id := s.state.CheckoutID
		if id == "" {
			id = uuid.NewString()
		}
		action = domain.StartCheckout(id)
	}

	_, err := s.transitionLocked(ctx, to, domain.Guard{
		CartEmpty:        s.state.IsEmpty(),
		PaymentConfirmed: paymentConfirmed,
	}, action)
	return err
}

func (s *CartStore) transitionLocked(ctx context.Context, to domain.Phase, g domain.Guard, actions ...domain.Action) (domain.CartState, error) {
	from := s.state.CheckoutProgress
	progress := domain.NewCheckoutProgress(from)
	err := progress.Transition(to, g)
	s.metrics.CheckoutTransition(string(from), string(to), err)
	if err != nil {
		s.log.Warn().Err(err).Str("from", string(from)).Str("to", string(to)).Msg("checkout transition rejected")
		return s.state.Clone(), err
	}

	s.log.Info().Str("from", string(from)).Str("to", string(progress.Current())).Msg("checkout transition")
	return s.applyLocked(ctx, actions...)
}

// beginConfirm claims the checkout for one payment confirmation.
func (s *CartStore) beginConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirming {
		return false
	}
	s.confirming = true
	return true
}

func (s *CartStore) endConfirm() {
	s.mu.Lock()
	s.confirming = false
	s.mu.Unlock()
}

func (s *CartStore) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirming || s.paid != nil
}

// rememberPaid records a payment whose order is not saved yet, so a retry of
// the same checkout persists the order without charging again.
func (s *CartStore) rememberPaid(p paidCheckout) {
	s.mu.Lock()
	s.paid = &p
	s.mu.Unlock()
}

func (s *CartStore) paidFor(checkoutID string) (paidCheckout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paid == nil || s.paid.checkoutID != checkoutID {
		return paidCheckout{}, false
	}
	return *s.paid, true
}

func (s *CartStore) forgetPaid() {
	s.mu.Lock()
	s.paid = nil
	s.mu.Unlock()
}

// settleCheckout moves to the confirmation page and removes the paid
// quantities in one write. Quantities added while the payment was in flight
// stay in the cart. The payment already happened, so a phase that moved in the
// meantime is overridden and a version conflict is retried on fresh state.
func (s *CartStore) settleCheckout(ctx context.Context, paid []domain.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := make([]domain.Action, 0, len(paid)+1)
	actions = append(actions, domain.SetCheckoutProgress(domain.PhaseConfirmation))
	for _, item := range paid {
		actions = append(actions, domain.RemoveFromCart(item))
	}

	var err error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		guard := domain.Guard{CartEmpty: s.state.IsEmpty(), PaymentConfirmed: true}
		if _, err = s.transitionLocked(ctx, domain.PhaseConfirmation, guard, actions...); errors.Is(err, domain.ErrIllegalTransition) {
			s.log.Warn().Str("phase", string(s.state.CheckoutProgress)).Msg("phase moved during payment, forcing confirmation")
			_, err = s.applyLocked(ctx, actions...)
		}
		if !errors.Is(err, port.ErrVersionConflict) {
			return err
		}
		if reloadErr := s.reloadLocked(ctx); reloadErr != nil {
			return reloadErr
		}
	}
	return err
}

// Dispatch applies action and persists the result. The returned state is the
// in-memory state, which is kept even when persistence fails.
func (s *CartStore) Dispatch(ctx context.Context, action domain.Action) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ctx, action)
}

func (s *CartStore) applyLocked(ctx context.Context, actions ...domain.Action) (domain.CartState, error) {
	prev := s.state
	next := s.state
	for _, action := range actions {
		next = domain.Reduce(next, action)
		s.metrics.CartMutation(string(action.Type))
	}
	next.Version = s.state.Version + 1
	s.state = next

	s.log.Debug().
		Int64("version", next.Version).
		Int("line_items", len(next.Cart)).
		Str("phase", string(next.CheckoutProgress)).
		Msg("cart mutated")

	if err := s.repo.Save(ctx, s.key, next.Clone()); err != nil {
		s.metrics.PersistFailure()
		if errors.Is(err, port.ErrVersionConflict) {
			// a newer snapshot exists; this mutation was never applied
			s.state = prev
			s.log.Warn().Int64("version", next.Version).Msg("stale cart snapshot rejected")
			return prev.Clone(), fmt.Errorf("persist cart %s: %w", s.key, err)
		}
		s.log.Error().Err(err).Int64("version", next.Version).Msg("failed to persist cart snapshot")
		return next.Clone(), fmt.Errorf("persist cart %s: %w", s.key, err)
	}

	return next.Clone(), nil
}

// Reload replaces the in-memory state with the durable snapshot, typically
// after Save reported port.ErrVersionConflict.
func (s *CartStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *CartStore) reloadLocked(ctx context.Context) error {
	snapshot, found, err := s.repo.Load(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load cart %s: %w", s.key, err)
	}
	if !found {
		snapshot = domain.NewCartState()
	}
	if snapshot.Cart == nil {
		snapshot.Cart = []domain.LineItem{}
	}
	s.state = snapshot
	return nil
}
