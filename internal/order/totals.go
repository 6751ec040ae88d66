package order

import "github.com/shopspring/decimal"

// Totals holds the monetary summary of an order.
// Total is always recomputed; a total received from upstream is never trusted.
type Totals struct {
	Subtotal   decimal.Decimal `json:"sub_total"`
	Discount   decimal.Decimal `json:"discount"`
	Shipping   decimal.Decimal `json:"shipping_charge"`
	Tax        decimal.Decimal `json:"tax_total"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Total      decimal.Decimal `json:"total"`
}

// Recompute derives Subtotal from the line item amounts and Total from
// subtotal - discount + shipping + tax + adjustment.
func (t Totals) Recompute(items []LineItem) Totals {
	subtotal := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.Amount())
	}
	t.Subtotal = subtotal
	t.Total = subtotal.Sub(t.Discount).Add(t.Shipping).Add(t.Tax).Add(t.Adjustment)
	return t
}

// Consistent reports whether Total matches the formula for the current Subtotal.
func (t Totals) Consistent() bool {
	return t.Total.Equal(t.Subtotal.Sub(t.Discount).Add(t.Shipping).Add(t.Tax).Add(t.Adjustment))
}

// RecomputeTotals refreshes o.Totals from its line items.
func (o *Order) RecomputeTotals() {
	o.Totals = o.Totals.Recompute(o.LineItems)
}
