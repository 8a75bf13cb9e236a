package checkout

import (
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// methodTargets maps the state a session is in to the state ChooseMethod leaves it in.
var methodTargets = map[enums.CheckoutState]enums.CheckoutState{
	enums.CheckoutStateUnselected:   enums.CheckoutStateMethodChosen,
	enums.CheckoutStateMethodChosen: enums.CheckoutStateMethodChosen,
	enums.CheckoutStateOrderCreated: enums.CheckoutStateOrderCreated,
	enums.CheckoutStateFailed:       enums.CheckoutStateOrderCreated,
}

// payableStates are the states a payment attempt may start from.
var payableStates = []enums.CheckoutState{
	enums.CheckoutStateOrderCreated,
	enums.CheckoutStateFailed,
}

// expirableStates are the states the abandoned-checkout job may expire.
var expirableStates = []enums.CheckoutState{
	enums.CheckoutStateUnselected,
	enums.CheckoutStateMethodChosen,
	enums.CheckoutStateOrderCreated,
	enums.CheckoutStatePaymentInFlight,
	enums.CheckoutStateFailed,
}

func isPayable(state enums.CheckoutState) bool {
	for _, s := range payableStates {
		if s == state {
			return true
		}
	}
	return false
}

func stateConflict(state enums.CheckoutState, op string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, op+" not allowed in the current checkout state").
		WithDetails(map[string]any{"state": state})
}

// payEntryError explains why a payment cannot start from state.
func payEntryError(state enums.CheckoutState) error {
	if state == enums.CheckoutStatePaymentInFlight {
		return pkgerrors.New(pkgerrors.CodeConflict, "a payment is already in progress").WithRetryable(true)
	}
	return stateConflict(state, "payment")
}
