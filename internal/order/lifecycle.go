package order

import (
	"slices"
	"strings"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// Action is a user-triggered lifecycle action.
type Action string

const (
	ActionCancel        Action = "cancel"
	ActionSendToPacking Action = "send_to_packing"
	ActionEdit          Action = "edit"
)

// CancelNotePrefix precedes the reason appended to the notes on cancellation.
const CancelNotePrefix = "CANCELLED: "

// allowedTransitions defines which actions are permitted from each status and
// where they lead. Edit keeps the current status and is handled separately.
var allowedTransitions = map[string]map[Action]string{
	enum.OrderStatusDraft: {
		ActionCancel: enum.OrderStatusCancelled,
	},
	enum.OrderStatusPending: {
		ActionCancel: enum.OrderStatusCancelled,
	},
	enum.OrderStatusConfirmed: {
		ActionCancel:        enum.OrderStatusCancelled,
		ActionSendToPacking: enum.OrderStatusProcessing,
	},
	enum.OrderStatusProcessing: {
		ActionCancel:        enum.OrderStatusCancelled,
		ActionSendToPacking: enum.OrderStatusProcessing,
	},
}

// IsTerminal reports whether no transition out of status is permitted.
func IsTerminal(status string) bool {
	return status == enum.OrderStatusCancelled || status == enum.OrderStatusVoid
}

// IsKnownStatus reports whether status is one of the lifecycle statuses.
func IsKnownStatus(status string) bool {
	return slices.Contains(enum.OrderStatuses, status)
}

// ApplyTransition returns the status that action leads to from current.
// Re-applying send_to_packing to a processing order is a no-op success.
func ApplyTransition(current string, action Action) (string, error) {
	if IsTerminal(current) {
		return "", &InvalidTransitionError{From: current, Action: action}
	}
	if action == ActionEdit {
		return current, nil
	}
	next, ok := allowedTransitions[current][action]
	if !ok {
		return "", &InvalidTransitionError{From: current, Action: action}
	}
	return next, nil
}

// AllowedActions lists the actions the UI may offer for status.
func AllowedActions(status string) []Action {
	if IsTerminal(status) {
		return []Action{}
	}
	actions := []Action{ActionEdit}
	for _, a := range []Action{ActionSendToPacking, ActionCancel} {
		if _, ok := allowedTransitions[status][a]; ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// Cancel moves o to cancelled and appends the reason to its notes.
// Prior notes are never overwritten.
func Cancel(o *Order, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ValidationError{Field: "reason", Reason: "cancellation reason is required"}
	}
	next, err := ApplyTransition(o.Status, ActionCancel)
	if err != nil {
		return err
	}
	o.Status = next
	o.Notes = AppendNote(o.Notes, CancelNotePrefix+reason)
	o.UpdatedAt = now
	return nil
}

// AppendNote adds line to notes on its own line.
func AppendNote(notes, line string) string {
	if strings.TrimSpace(notes) == "" {
		return line
	}
	return strings.TrimRight(notes, "\n") + "\n" + line
}

// EditRequest holds the editable fields. Nil fields are left untouched.
type EditRequest struct {
	Notes           *string    `json:"notes,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	ReferenceNumber *string    `json:"reference_number,omitempty"`
	Status          *string    `json:"status,omitempty"`
	BillingAddress  *Address   `json:"billing_address,omitempty"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r EditRequest) Empty() bool {
	return r.Notes == nil && r.Date == nil && r.DeliveryDate == nil && r.ReferenceNumber == nil &&
		r.Status == nil && r.BillingAddress == nil && r.ShippingAddress == nil
}

// Validate checks the request against the order's current status without mutating it.
func (r EditRequest) Validate(current string) error {
	if _, err := ApplyTransition(current, ActionEdit); err != nil {
		return err
	}
	if r.Empty() {
		return &ValidationError{Reason: "no fields to update"}
	}
	if r.Status != nil {
		if !IsKnownStatus(*r.Status) {
			return &ValidationError{Field: "status", Reason: "unknown status " + *r.Status}
		}
		if IsTerminal(*r.Status) {
			return &ValidationError{Field: "status", Reason: *r.Status + " requires an explicit action"}
		}
	}
	if r.Date != nil && r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "date cannot be empty"}
	}
	return nil
}

// Edit applies r to o and returns the changed fields keyed by wire name.
// Status changes only when r.Status is set.
func Edit(o *Order, r EditRequest, now time.Time) (map[string]any, error) {
	if err := r.Validate(o.Status); err != nil {
		return nil, err
	}

	changes := make(map[string]any)
	if r.Notes != nil && *r.Notes != o.Notes {
		o.Notes = *r.Notes
		changes["notes"] = o.Notes
	}
	if r.Date != nil && !r.Date.Equal(o.Date) {
		o.Date = *r.Date
		changes["date"] = o.Date.Format(time.DateOnly)
	}
	if r.DeliveryDate != nil && (o.DeliveryDate == nil || !r.DeliveryDate.Equal(*o.DeliveryDate)) {
		d := *r.DeliveryDate
		o.DeliveryDate = &d
		changes["delivery_date"] = d.Format(time.DateOnly)
	}
	if r.ReferenceNumber != nil && *r.ReferenceNumber != o.ReferenceNumber {
		o.ReferenceNumber = *r.ReferenceNumber
		changes["reference_number"] = o.ReferenceNumber
	}
	if r.Status != nil && *r.Status != o.Status {
		o.Status = *r.Status
		changes["status"] = o.Status
	}
	if r.BillingAddress != nil && *r.BillingAddress != o.BillingAddress {
		o.BillingAddress = *r.BillingAddress
		changes["billing_address"] = o.BillingAddress
	}
	if r.ShippingAddress != nil && *r.ShippingAddress != o.ShippingAddress {
		o.ShippingAddress = *r.ShippingAddress
		changes["shipping_address"] = o.ShippingAddress
	}

	o.UpdatedAt = now
	return changes, nil
}

// SendToPacking moves o to processing. The returned flag is true when the order
// was already processing and nothing changed.
func SendToPacking(o *Order, now time.Time) (noop bool, err error) {
	next, err := ApplyTransition(o.Status, ActionSendToPacking)
	if err != nil {
		return false, err
	}
	if o.Status == next {
		return true, nil
	}
	o.Status = next
	o.UpdatedAt = now
	return false, nil
}
