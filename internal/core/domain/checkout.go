package domain

import (
	"errors"
	"fmt"
)

// Phase is the checkout step the cart drawer is showing.
type Phase string

const (
	PhaseCart         Phase = "cart-page" // initial
	PhasePayment      Phase = "payment-page"
	PhaseConfirmation Phase = "confirmation-page"
)

var (
	ErrUnknownPhase      = errors.New("unknown checkout phase")
	ErrIllegalTransition = errors.New("illegal checkout transition")
	ErrEmptyCart         = errors.New("cart is empty")
)

// legalTransitions lists the forward edges. Returning to PhaseCart is always
// allowed and is handled separately.
var legalTransitions = map[Phase]Phase{
	PhaseCart:         PhasePayment,
	PhasePayment:      PhaseConfirmation,
	PhaseConfirmation: PhaseCart,
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseCart, PhasePayment, PhaseConfirmation:
		return true
	}
	return false
}

// Step is the zero-based position of p in the progress bar.
func (p Phase) Step() int {
	switch p {
	case PhasePayment:
		return 1
	case PhaseConfirmation:
		return 2
	}
	return 0
}

// Guard carries the facts a transition depends on.
type Guard struct {
	CartEmpty        bool
	PaymentConfirmed bool
}

// CanTransition reports whether from -> to is a legal checkout move:
//
//	cart-page -> payment-page           cart must be non-empty
//	payment-page -> confirmation-page   payment must be confirmed
//	confirmation-page -> cart-page
//	any -> cart-page                    cancellation / error recovery
func CanTransition(from, to Phase, g Guard) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, to)
	}

	if to == PhaseCart {
		return nil
	}

	if legalTransitions[from] != to {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	switch to {
	case PhasePayment:
		if g.CartEmpty {
			return fmt.Errorf("%w: %s -> %s: %w", ErrIllegalTransition, from, to, ErrEmptyCart)
		}
	case PhaseConfirmation:
		if !g.PaymentConfirmed {
			return fmt.Errorf("%w: %s -> %s: payment not confirmed", ErrIllegalTransition, from, to)
		}
	}

	return nil
}

// CheckoutProgress is the guarded checkout state machine. It is reusable: there
// is no terminal phase.
type CheckoutProgress struct {
	phase Phase
}

func NewCheckoutProgress(phase Phase) *CheckoutProgress {
	if !phase.Valid() {
		phase = PhaseCart
	}
	return &CheckoutProgress{phase: phase}
}

func (c *CheckoutProgress) Current() Phase {
	return c.phase
}

// Transition moves to next if CanTransition allows it; on error the phase is unchanged.
func (c *CheckoutProgress) Transition(next Phase, g Guard) error {
	if err := CanTransition(c.phase, next, g); err != nil {
		return err
	}
	c.phase = next
	return nil
}
