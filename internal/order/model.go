package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is a billing or shipping address captured at order time.
// It is independent of the customer's current address.
type Address struct {
	Attention string `json:"attention,omitempty"`
	Street    string `json:"street,omitempty"`
	Street2   string `json:"street2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsZero reports whether no address field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// LineItem is a single product entry on an order.
// Quantities other than Ordered are tracked independently by the system of record.
type LineItem struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Ordered   int             `json:"quantity"`
	Shipped   int             `json:"quantity_shipped"`
	Packed    int             `json:"quantity_packed"`
	Delivered int             `json:"quantity_delivered"`
	Invoiced  int             `json:"quantity_invoiced"`
	Cancelled int             `json:"quantity_cancelled"`
	Returned  int             `json:"quantity_returned"`
}

// Amount is rate × ordered quantity, fixed at order time.
func (li LineItem) Amount() decimal.Decimal {
	return li.Rate.Mul(decimal.NewFromInt(int64(li.Ordered)))
}

// Package is a physical shipment record. Packages carry shipment metadata only;
// shipped quantities are tracked on the line items.
type Package struct {
	ID             string     `json:"id"`
	Number         string     `json:"package_number"`
	Carrier        string     `json:"carrier"`
	DeliveryMethod string     `json:"delivery_method"`
	TrackingNumber string     `json:"tracking_number"`
	ShipmentDate   *time.Time `json:"shipment_date"`
	Quantity       *int       `json:"quantity,omitempty"`
	Status         string     `json:"status"`
}

// SyncFailure records the most recent failed forward to the system of record.
type SyncFailure struct {
	OperationID string    `json:"operation_id"`
	Kind        string    `json:"kind"`
	ErrorKind   string    `json:"error_kind"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}

// Order is the in-memory aggregate for one view session.
type Order struct {
	ID              string     `json:"id"`
	ExternalNumber  string     `json:"salesorder_number"`
	ReferenceNumber string     `json:"reference_number"`
	Status          string     `json:"status"`
	Date            time.Time  `json:"date"`
	DeliveryDate    *time.Time `json:"delivery_date"`
	CustomerID      string     `json:"customer_id"`
	CustomerName    string     `json:"customer_name"`
	Salesperson     string     `json:"salesperson_name"`
	Notes           string     `json:"notes"`
	BillingAddress  Address    `json:"billing_address"`
	ShippingAddress Address    `json:"shipping_address"`
	Totals          Totals     `json:"totals"`
	LineItems       []LineItem `json:"line_items"`
	Packages        []Package  `json:"packages"`

	LastSyncError *SyncFailure `json:"last_sync_error"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Clone returns a deep copy suitable for an optimistic-update snapshot.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		c.DeliveryDate = &d
	}
	if o.LineItems != nil {
		c.LineItems = make([]LineItem, len(o.LineItems))
		copy(c.LineItems, o.LineItems)
	}
	if o.Packages != nil {
		c.Packages = make([]Package, len(o.Packages))
		for i, p := range o.Packages {
			if p.ShipmentDate != nil {
				d := *p.ShipmentDate
				p.ShipmentDate = &d
			}
			if p.Quantity != nil {
				q := *p.Quantity
				p.Quantity = &q
			}
			c.Packages[i] = p
		}
	}
	if o.LastSyncError != nil {
		f := *o.LastSyncError
		c.LastSyncError = &f
	}
	return &c
}

// IsTerminal reports whether the order can no longer transition.
func (o *Order) IsTerminal() bool {
	return IsTerminal(o.Status)
}
