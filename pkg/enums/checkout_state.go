package enums

import "slices"

// CheckoutState is the single authoritative state of a checkout session.
type CheckoutState string

const (
	CheckoutStateUnselected      CheckoutState = "unselected"
	CheckoutStateMethodChosen    CheckoutState = "method_chosen"
	CheckoutStateOrderCreated    CheckoutState = "order_created"
	CheckoutStatePaymentInFlight CheckoutState = "payment_in_flight"
	CheckoutStateSettled         CheckoutState = "settled"
	CheckoutStateFailed          CheckoutState = "failed"
	CheckoutStateExpired         CheckoutState = "expired"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateUnselected,
	CheckoutStateMethodChosen,
	CheckoutStateOrderCreated,
	CheckoutStatePaymentInFlight,
	CheckoutStateSettled,
	CheckoutStateFailed,
	CheckoutStateExpired,
}

func (c CheckoutState) String() string {
	return string(c)
}

func (c CheckoutState) IsValid() bool {
	return slices.Contains(validCheckoutStates, c)
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	return parse(validCheckoutStates, value, "checkout state")
}

// IsTerminal reports whether no further payment activity is possible.
func (c CheckoutState) IsTerminal() bool {
	return c == CheckoutStateSettled || c == CheckoutStateExpired
}

// HasOrders reports whether orders have been latched for the session.
func (c CheckoutState) HasOrders() bool {
	switch c {
	case CheckoutStateOrderCreated, CheckoutStatePaymentInFlight, CheckoutStateSettled, CheckoutStateFailed:
		return true
	}
	return false
}
