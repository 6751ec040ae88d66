package order

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned when no order exists for an id.
var ErrOrderNotFound = errors.New("order not found")

// ValidationError reports malformed or impossible local state.
// It is resolved locally and never sent to the system of record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// OverShipmentAnomaly reports a line item whose shipped quantity exceeds the
// ordered quantity. It is surfaced as a warning and never clamped.
type OverShipmentAnomaly struct {
	LineItemID string `json:"line_item_id"`
	SKU        string `json:"sku"`
	Ordered    int    `json:"ordered"`
	Shipped    int    `json:"shipped"`
}

func (e *OverShipmentAnomaly) Error() string {
	return fmt.Sprintf("line item %s (%s): shipped %d exceeds ordered %d", e.LineItemID, e.SKU, e.Shipped, e.Ordered)
}

// Excess is the over-shipped quantity.
func (e *OverShipmentAnomaly) Excess() int {
	return e.Shipped - e.Ordered
}

// InvalidTransitionError is returned when an action is not permitted from the
// current status. It is raised before any network call.
type InvalidTransitionError struct {
	From   string
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	if IsTerminal(e.From) {
		return fmt.Sprintf("cannot %s: order is %s", e.Action, e.From)
	}
	return fmt.Sprintf("cannot %s from %s", e.Action, e.From)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is an *InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
