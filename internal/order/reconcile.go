package order

import (
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/shopspring/decimal"
)

// Discrepancy reports a reported status that disagrees with what the
// shipment and invoice signals imply. Discrepancies are flagged, never corrected.
type Discrepancy struct {
	Reported string `json:"reported"`
	Derived  string `json:"derived"`
	Reason   string `json:"reason"`
}

// DeriveStatus returns the status implied by shipped quantities and the
// invoiced amount. Without any fulfillment signal the reported status stands.
func DeriveStatus(o *Order, ledger LedgerResult, invoiced decimal.Decimal) (string, string) {
	if IsTerminal(o.Status) || o.Status == enum.OrderStatusDraft || o.Status == enum.OrderStatusPending {
		return o.Status, ""
	}

	q := ledger.Quantities
	switch {
	case o.Status == enum.OrderStatusDelivered:
		return o.Status, ""
	case q.Ordered > 0 && q.Delivered >= q.Ordered:
		return enum.OrderStatusDelivered, "all ordered units delivered"
	case o.Totals.Total.IsPositive() && invoiced.GreaterThanOrEqual(o.Totals.Total):
		return enum.OrderStatusInvoiced, "linked invoices cover the order total"
	case invoiced.IsPositive():
		return enum.OrderStatusPartiallyInvoiced, "linked invoices cover part of the order total"
	case ledger.FullyShipped():
		return enum.OrderStatusShipped, "all line items shipped"
	case ledger.ShippedCount > 0 || ledger.PartialCount > 0:
		return enum.OrderStatusPartiallyShipped, "some line items shipped"
	}
	return o.Status, ""
}

// Reconcile compares the reported status with the derived one.
func Reconcile(o *Order, ledger LedgerResult, invoiced decimal.Decimal) []Discrepancy {
	derived, reason := DeriveStatus(o, ledger, invoiced)
	if derived == o.Status || reason == "" {
		return []Discrepancy{}
	}
	return []Discrepancy{{Reported: o.Status, Derived: derived, Reason: reason}}
}
