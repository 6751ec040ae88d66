package gateway

import (
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/order"
)

// Payload is the JSON body posted to the order-of-record webhook.
type Payload struct {
	OperationID  string         `json:"operation_id"`
	Action       string         `json:"action"`
	UpdateType   string         `json:"update_type"`
	OrderID      string         `json:"order_id"`
	OrderNumber  string         `json:"order_number"`
	CustomerData CustomerData   `json:"customer_data"`
	OrderData    OrderData      `json:"order_data"`
	UpdateData   map[string]any `json:"update_data"`
	Timestamp    string         `json:"timestamp"`
	Source       string         `json:"source"`
}

type CustomerData struct {
	CustomerID      string        `json:"customer_id"`
	CustomerName    string        `json:"customer_name"`
	BillingAddress  order.Address `json:"billing_address"`
	ShippingAddress order.Address `json:"shipping_address"`
}

type OrderData struct {
	SalesOrderNumber string         `json:"salesorder_number"`
	ReferenceNumber  string         `json:"reference_number"`
	Status           string         `json:"status"`
	Date             string         `json:"date"`
	DeliveryDate     string         `json:"delivery_date,omitempty"`
	Salesperson      string         `json:"salesperson_name"`
	Notes            string         `json:"notes"`
	SubTotal         string         `json:"sub_total"`
	Discount         string         `json:"discount"`
	Shipping         string         `json:"shipping_charge"`
	Tax              string         `json:"tax_total"`
	Adjustment       string         `json:"adjustment"`
	Total            string         `json:"total"`
	LineItems        []LineItemData `json:"line_items"`
}

type LineItemData struct {
	ItemID   string `json:"item_id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Rate     string `json:"rate"`
	Amount   string `json:"amount"`
}

var actions = map[string]string{
	enum.SyncKindUpdate: "update_order",
	enum.SyncKindCancel: "cancel_order",
	enum.SyncKindResend: "resend_order",
}

// BuildPayload snapshots o for the given kind. updates holds the changed
// fields (or the cancellation reason) and may be nil.
func BuildPayload(o *order.Order, kind string, updates map[string]any, source string, now time.Time) Payload {
	updateType := enum.UpdateTypeUpdate
	if kind == enum.SyncKindCancel {
		updateType = enum.UpdateTypeCancel
	}
	if updates == nil {
		updates = map[string]any{}
	}

	data := OrderData{
		SalesOrderNumber: o.ExternalNumber,
		ReferenceNumber:  o.ReferenceNumber,
		Status:           o.Status,
		Salesperson:      o.Salesperson,
		Notes:            o.Notes,
		SubTotal:         o.Totals.Subtotal.StringFixed(2),
		Discount:         o.Totals.Discount.StringFixed(2),
		Shipping:         o.Totals.Shipping.StringFixed(2),
		Tax:              o.Totals.Tax.StringFixed(2),
		Adjustment:       o.Totals.Adjustment.StringFixed(2),
		Total:            o.Totals.Total.StringFixed(2),
		LineItems:        make([]LineItemData, len(o.LineItems)),
	}
	if !o.Date.IsZero() {
		data.Date = o.Date.Format(time.DateOnly)
	}
	if o.DeliveryDate != nil {
		data.DeliveryDate = o.DeliveryDate.Format(time.DateOnly)
	}
	for i, li := range o.LineItems {
		data.LineItems[i] = LineItemData{
			ItemID:   li.ItemID,
			SKU:      li.SKU,
			Name:     li.Name,
			Quantity: li.Ordered,
			Rate:     li.Rate.StringFixed(2),
			Amount:   li.Amount().StringFixed(2),
		}
	}

	return Payload{
		Action:      actions[kind],
		UpdateType:  updateType,
		OrderID:     o.ID,
		OrderNumber: o.ExternalNumber,
		CustomerData: CustomerData{
			CustomerID:      o.CustomerID,
			CustomerName:    o.CustomerName,
			BillingAddress:  o.BillingAddress,
			ShippingAddress: o.ShippingAddress,
		},
		OrderData:  data,
		UpdateData: updates,
		Timestamp:  now.UTC().Format(time.RFC3339),
		Source:     source,
	}
}
