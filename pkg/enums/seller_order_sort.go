package enums

import "slices"

// SellerOrderSort orders the seller order listing.
type SellerOrderSort string

const (
	SellerOrderSortDateDesc   SellerOrderSort = "date_desc"
	SellerOrderSortDateAsc    SellerOrderSort = "date_asc"
	SellerOrderSortAmountDesc SellerOrderSort = "amount_desc"
	SellerOrderSortAmountAsc  SellerOrderSort = "amount_asc"
)

var validSellerOrderSorts = []SellerOrderSort{
	SellerOrderSortDateDesc,
	SellerOrderSortDateAsc,
	SellerOrderSortAmountDesc,
	SellerOrderSortAmountAsc,
}

func (s SellerOrderSort) String() string {
	return string(s)
}

func (s SellerOrderSort) IsValid() bool {
	return slices.Contains(validSellerOrderSorts, s)
}

// ParseSellerOrderSort converts raw input into a SellerOrderSort.
func ParseSellerOrderSort(value string) (SellerOrderSort, error) {
	return parse(validSellerOrderSorts, value, "sort")
}
