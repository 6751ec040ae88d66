package order

import (
	"errors"
	"fmt"

	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// LedgerEntry is a line item annotated with its fulfillment state.
type LedgerEntry struct {
	Item      LineItem `json:"item"`
	State     string   `json:"fulfillment_state"`
	ToShip    int      `json:"to_ship"`
	ToInvoice int      `json:"to_invoice"`
}

// QuantityTotals sums each tracked quantity across all line items.
type QuantityTotals struct {
	Ordered   int `json:"ordered"`
	Shipped   int `json:"shipped"`
	Packed    int `json:"packed"`
	Delivered int `json:"delivered"`
	Invoiced  int `json:"invoiced"`
	Cancelled int `json:"cancelled"`
	Returned  int `json:"returned"`
}

// LedgerResult is the output of the quantity ledger.
// AwaitingCount + PartialCount + ShippedCount == AllCount.
type LedgerResult struct {
	Entries       []LedgerEntry          `json:"entries"`
	AllCount      int                    `json:"all_count"`
	ShippedCount  int                    `json:"shipped_count"`
	PartialCount  int                    `json:"partial_count"`
	AwaitingCount int                    `json:"awaiting_count"`
	Quantities    QuantityTotals         `json:"quantities"`
	Anomalies     []*OverShipmentAnomaly `json:"-"`
}

// Err joins the over-shipment anomalies, or returns nil when there are none.
func (r LedgerResult) Err() error {
	if len(r.Anomalies) == 0 {
		return nil
	}
	errs := make([]error, len(r.Anomalies))
	for i, a := range r.Anomalies {
		errs[i] = a
	}
	return errors.Join(errs...)
}

// FullyShipped reports whether every line item is complete.
func (r LedgerResult) FullyShipped() bool {
	return r.AllCount > 0 && r.ShippedCount == r.AllCount
}

// ShippedPercent is the share of ordered units shipped, capped at 100.
func (r LedgerResult) ShippedPercent() int {
	if r.Quantities.Ordered == 0 {
		return 0
	}
	shipped := 0
	for _, e := range r.Entries {
		shipped += min(e.Item.Shipped, e.Item.Ordered)
	}
	return shipped * 100 / r.Quantities.Ordered
}

// FulfillmentState classifies a single line item.
// shipped == 0 is unshipped, shipped >= ordered is complete, anything between is partial.
func FulfillmentState(li LineItem) string {
	switch {
	case li.Shipped == 0:
		return enum.FulfillmentUnshipped
	case li.Shipped >= li.Ordered:
		return enum.FulfillmentComplete
	default:
		return enum.FulfillmentPartial
	}
}

// Ledger computes the fulfillment state of each line item plus aggregate counts.
// A zero or negative ordered quantity fails the whole computation.
func Ledger(items []LineItem) (LedgerResult, error) {
	res := LedgerResult{
		Entries:  make([]LedgerEntry, 0, len(items)),
		AllCount: len(items),
	}

	for i, li := range items {
		if li.Ordered <= 0 {
			return LedgerResult{}, &ValidationError{
				Field:  fmt.Sprintf("line_items[%d].quantity", i),
				Reason: "ordered quantity must be > 0",
			}
		}
		if li.Shipped < 0 || li.Invoiced < 0 || li.Cancelled < 0 || li.Packed < 0 ||
			li.Delivered < 0 || li.Returned < 0 {
			return LedgerResult{}, &ValidationError{
				Field:  fmt.Sprintf("line_items[%d]", i),
				Reason: "tracked quantities must be >= 0",
			}
		}

		state := FulfillmentState(li)
		switch state {
		case enum.FulfillmentComplete:
			res.ShippedCount++
		case enum.FulfillmentPartial:
			res.PartialCount++
		default:
			res.AwaitingCount++
		}

		if li.Shipped > li.Ordered {
			res.Anomalies = append(res.Anomalies, &OverShipmentAnomaly{
				LineItemID: li.ID,
				SKU:        li.SKU,
				Ordered:    li.Ordered,
				Shipped:    li.Shipped,
			})
		}

		res.Entries = append(res.Entries, LedgerEntry{
			Item:      li,
			State:     state,
			ToShip:    max(li.Ordered-li.Shipped, 0),
			ToInvoice: max(li.Ordered-li.Invoiced-li.Cancelled, 0),
		})

		res.Quantities.Ordered += li.Ordered
		res.Quantities.Shipped += li.Shipped
		res.Quantities.Packed += li.Packed
		res.Quantities.Delivered += li.Delivered
		res.Quantities.Invoiced += li.Invoiced
		res.Quantities.Cancelled += li.Cancelled
		res.Quantities.Returned += li.Returned
	}

	return res, nil
}

// ValidateNewLineItem rejects line items that can never be added to an order.
func ValidateNewLineItem(li LineItem) error {
	if li.Ordered <= 0 {
		return &ValidationError{Field: "quantity", Reason: "quantity must be > 0"}
	}
	if li.Rate.IsNegative() {
		return &ValidationError{Field: "rate", Reason: "rate cannot be negative"}
	}
	return nil
}
