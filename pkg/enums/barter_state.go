package enums

import "slices"

// BarterState is the step of the barter negotiation wizard.
type BarterState string

const (
	BarterStateIdle       BarterState = "idle"
	BarterStateAddingItem BarterState = "adding_item"
	BarterStateReviewing  BarterState = "reviewing"
	BarterStateSubmitted  BarterState = "submitted"
)

var validBarterStates = []BarterState{
	BarterStateIdle,
	BarterStateAddingItem,
	BarterStateReviewing,
	BarterStateSubmitted,
}

func (b BarterState) String() string {
	return string(b)
}

func (b BarterState) IsValid() bool {
	return slices.Contains(validBarterStates, b)
}
