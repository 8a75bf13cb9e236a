package barter

import (
	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/enums"
)

var (
	MaxTopUp  = decimal.NewFromInt(5000)
	TopUpStep = decimal.NewFromInt(100)
)

// Classify compares what the buyer offers against the order total. Advisory only.
func Classify(estimatedValue, topUp, orderTotal decimal.Decimal) enums.BarterBalance {
	offered := estimatedValue.Add(topUp)
	switch offered.Cmp(orderTotal) {
	case 0:
		return enums.BarterBalanceFair
	case 1:
		return enums.BarterBalanceOfferingMore
	default:
		return enums.BarterBalanceTopUpRecommended
	}
}

// validTopUp reports whether amount is within 0..5000 in steps of 100.
func validTopUp(amount decimal.Decimal) bool {
	if amount.IsNegative() || amount.GreaterThan(MaxTopUp) {
		return false
	}
	return amount.Mod(TopUpStep).IsZero()
}

// transitions lists the wizard moves; submission is handled separately.
var transitions = map[enums.BarterState][]enums.BarterState{
	enums.BarterStateIdle:       {enums.BarterStateAddingItem},
	enums.BarterStateAddingItem: {enums.BarterStateAddingItem, enums.BarterStateReviewing},
	enums.BarterStateReviewing:  {enums.BarterStateReviewing, enums.BarterStateAddingItem, enums.BarterStateSubmitted},
}

func canMove(from, to enums.BarterState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
