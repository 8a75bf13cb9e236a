package cart

import "github.com/shopspring/decimal"

var (
	// TaxRate is a flat policy rate, not configurable per product.
	TaxRate               = decimal.RequireFromString("0.18")
	FreeShippingThreshold = decimal.NewFromInt(1000)
	ShippingFee           = decimal.NewFromInt(100)
)

// Totals is the price breakdown of a set of cart lines.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals applies the totals policy:
// tax is 18% of the subtotal rounded to 2 places, shipping is free for an empty
// cart or a subtotal above 1000 and 100 otherwise.
func ComputeTotals(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}

	shipping := ShippingFee
	if subtotal.IsZero() || subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate).Round(2)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}
