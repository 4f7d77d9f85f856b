package domain

type ActionType string

const (
	ActionAddToCart           ActionType = "add_to_cart"
	ActionRemoveFromCart      ActionType = "remove_from_cart"
	ActionClearCart           ActionType = "clear_cart"
	ActionSetCheckoutProgress ActionType = "set_checkout_progress"
	ActionSetCartOpen         ActionType = "set_cart_open"
)

// Action describes one cart mutation. Only the fields relevant to Type are read.
type Action struct {
	Type  ActionType
	Item  LineItem
	Phase Phase
	Open  bool

	CheckoutID string
}

func AddToCart(item LineItem) Action {
	return Action{Type: ActionAddToCart, Item: item}
}

func RemoveFromCart(item LineItem) Action {
	return Action{Type: ActionRemoveFromCart, Item: item}
}

func ClearCart() Action {
	return Action{Type: ActionClearCart}
}

func SetCheckoutProgress(phase Phase) Action {
	return Action{Type: ActionSetCheckoutProgress, Phase: phase}
}

// StartCheckout moves to the payment page under checkoutID. A checkout that is
// already open keeps its id.
func StartCheckout(checkoutID string) Action {
	return Action{Type: ActionSetCheckoutProgress, Phase: PhasePayment, CheckoutID: checkoutID}
}

func SetCartOpen(open bool) Action {
	return Action{Type: ActionSetCartOpen, Open: open}
}

// Reduce applies action to state and returns the next state. It never mutates
// state and never fails: unknown variants on remove and non-positive deltas
// are no-ops. Version is left for the caller to advance.
func Reduce(state CartState, action Action) CartState {
	next := state.Clone()

	switch action.Type {
	case ActionAddToCart:
		next.Cart = addItem(next.Cart, action.Item)
	case ActionRemoveFromCart:
		next.Cart = removeItem(next.Cart, action.Item)
	case ActionClearCart:
		next.Cart = []LineItem{}
	case ActionSetCheckoutProgress:
		next.CheckoutProgress = action.Phase
		switch {
		case action.Phase == PhaseConfirmation:
			next.CheckoutID = ""
		case next.CheckoutID == "":
			next.CheckoutID = action.CheckoutID
		}
	case ActionSetCartOpen:
		next.CartOpen = action.Open
	}

	return next
}

// addItem merges by variant id. Display metadata of an existing entry wins over
// the incoming item; only the quantity is accumulated.
func addItem(cart []LineItem, item LineItem) []LineItem {
	delta := item.Variant.Quantity
	if delta <= 0 {
		return cart
	}

	for i := range cart {
		if cart[i].Variant.VariantID == item.Variant.VariantID {
			cart[i].Variant.Quantity += delta
			return cart
		}
	}

	return append(cart, item)
}

func removeItem(cart []LineItem, item LineItem) []LineItem {
	delta := item.Variant.Quantity
	if delta <= 0 {
		return cart
	}

	for i := range cart {
		if cart[i].Variant.VariantID == item.Variant.VariantID {
			cart[i].Variant.Quantity -= delta
			break
		}
	}

	kept := cart[:0]
	for _, existing := range cart {
		if existing.Variant.Quantity > 0 {
			kept = append(kept, existing)
		}
	}
	return kept
}
