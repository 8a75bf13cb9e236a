package enums

import "slices"

// BarterBalance is the advisory classification of a barter offer against the order total.
type BarterBalance string

const (
	BarterBalanceFair             BarterBalance = "fair_exchange"
	BarterBalanceOfferingMore     BarterBalance = "offering_more_value"
	BarterBalanceTopUpRecommended BarterBalance = "top_up_recommended"
)

var validBarterBalances = []BarterBalance{
	BarterBalanceFair,
	BarterBalanceOfferingMore,
	BarterBalanceTopUpRecommended,
}

func (b BarterBalance) String() string {
	return string(b)
}

func (b BarterBalance) IsValid() bool {
	return slices.Contains(validBarterBalances, b)
}
