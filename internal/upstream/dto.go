package upstream

import (
	"time"

	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// --- Wire types ---

type lineItemDTO struct {
	LineItemID        string          `json:"line_item_id"`
	ItemID            string          `json:"item_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Rate              decimal.Decimal `json:"rate"`
	Quantity          int             `json:"quantity"`
	QuantityShipped   int             `json:"quantity_shipped"`
	QuantityPacked    int             `json:"quantity_packed"`
	QuantityDelivered int             `json:"quantity_delivered"`
	QuantityInvoiced  int             `json:"quantity_invoiced"`
	QuantityCancelled int             `json:"quantity_cancelled"`
	QuantityReturned  int             `json:"quantity_returned"`
}

type packageDTO struct {
	PackageID      string `json:"package_id"`
	PackageNumber  string `json:"package_number"`
	Carrier        string `json:"carrier"`
	DeliveryMethod string `json:"delivery_method"`
	TrackingNumber string `json:"tracking_number"`
	ShipmentDate   string `json:"shipment_date"`
	Quantity       *int   `json:"quantity"`
	Status         string `json:"status"`
}

type orderDTO struct {
	SalesOrderID     string          `json:"salesorder_id"`
	SalesOrderNumber string          `json:"salesorder_number"`
	ReferenceNumber  string          `json:"reference_number"`
	Status           string          `json:"status"`
	Date             string          `json:"date"`
	DeliveryDate     string          `json:"delivery_date"`
	CustomerID       string          `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	SalespersonName  string          `json:"salesperson_name"`
	Notes            string          `json:"notes"`
	BillingAddress   order.Address   `json:"billing_address"`
	ShippingAddress  order.Address   `json:"shipping_address"`
	Discount         decimal.Decimal `json:"discount"`
	ShippingCharge   decimal.Decimal `json:"shipping_charge"`
	TaxTotal         decimal.Decimal `json:"tax_total"`
	Adjustment       decimal.Decimal `json:"adjustment"`
	LineItems        []lineItemDTO   `json:"line_items"`
	Packages         []packageDTO    `json:"packages"`
	LastModifiedTime string          `json:"last_modified_time"`
}

// toDomain converts the wire order. Subtotal and total are recomputed
// from the line items rather than taken from the server.
func (d orderDTO) toDomain() (*order.Order, error) {
	o := &order.Order{
		ID:              d.SalesOrderID,
		ExternalNumber:  d.SalesOrderNumber,
		ReferenceNumber: d.ReferenceNumber,
		Status:          d.Status,
		CustomerID:      d.CustomerID,
		CustomerName:    d.CustomerName,
		Salesperson:     d.SalespersonName,
		Notes:           d.Notes,
		BillingAddress:  d.BillingAddress,
		ShippingAddress: d.ShippingAddress,
		Totals: order.Totals{
			Discount:   d.Discount,
			Shipping:   d.ShippingCharge,
			Tax:        d.TaxTotal,
			Adjustment: d.Adjustment,
		},
		LineItems: make([]order.LineItem, len(d.LineItems)),
		Packages:  make([]order.Package, len(d.Packages)),
	}

	var err error
	if o.Date, err = parseDate(d.Date); err != nil {
		return nil, errors.Wrap(err, "order date")
	}
	if d.DeliveryDate != "" {
		dd, err := parseDate(d.DeliveryDate)
		if err != nil {
			return nil, errors.Wrap(err, "delivery date")
		}
		o.DeliveryDate = &dd
	}
	if d.LastModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, d.LastModifiedTime); err == nil {
			o.UpdatedAt = t
		}
	}

	for i, li := range d.LineItems {
		o.LineItems[i] = order.LineItem{
			ID:        li.LineItemID,
			ItemID:    li.ItemID,
			SKU:       li.SKU,
			Name:      li.Name,
			Rate:      li.Rate,
			Ordered:   li.Quantity,
			Shipped:   li.QuantityShipped,
			Packed:    li.QuantityPacked,
			Delivered: li.QuantityDelivered,
			Invoiced:  li.QuantityInvoiced,
			Cancelled: li.QuantityCancelled,
			Returned:  li.QuantityReturned,
		}
	}
	for i, p := range d.Packages {
		pkg := order.Package{
			ID:             p.PackageID,
			Number:         p.PackageNumber,
			Carrier:        p.Carrier,
			DeliveryMethod: p.DeliveryMethod,
			TrackingNumber: p.TrackingNumber,
			Quantity:       p.Quantity,
			Status:         p.Status,
		}
		if p.ShipmentDate != "" {
			sd, err := parseDate(p.ShipmentDate)
			if err != nil {
				return nil, errors.Wrapf(err, "package %s shipment date", p.PackageNumber)
			}
			pkg.ShipmentDate = &sd
		}
		o.Packages[i] = pkg
	}

	o.RecomputeTotals()
	return o, nil
}

type invoiceDTO struct {
	InvoiceID        string          `json:"invoice_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	CustomerID       string          `json:"customer_id"`
	SalesOrderNumber string          `json:"salesorder_number"`
	Status           string          `json:"status"`
	Date             string          `json:"date"`
	DueDate          string          `json:"due_date"`
	Total            decimal.Decimal `json:"total"`
	Balance          decimal.Decimal `json:"balance"`
}

func (d invoiceDTO) toDomain() (invoice.Invoice, error) {
	inv := invoice.Invoice{
		ID:               d.InvoiceID,
		Number:           d.InvoiceNumber,
		CustomerID:       d.CustomerID,
		SalesOrderNumber: d.SalesOrderNumber,
		Status:           d.Status,
		Total:            d.Total,
		Balance:          d.Balance,
	}
	var err error
	if inv.Date, err = parseDate(d.Date); err != nil {
		return invoice.Invoice{}, errors.Wrapf(err, "invoice %s date", d.InvoiceNumber)
	}
	if d.DueDate != "" {
		due, err := parseDate(d.DueDate)
		if err != nil {
			return invoice.Invoice{}, errors.Wrapf(err, "invoice %s due date", d.InvoiceNumber)
		}
		inv.DueDate = &due
	}
	return inv, nil
}

// parseDate accepts a calendar date or a full timestamp. Empty yields the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// OrderPatch is the partial body of an authoritative order update.
// Only set fields are sent.
type OrderPatch struct {
	Notes           *string        `json:"notes,omitempty"`
	Status          *string        `json:"status,omitempty"`
	Date            *string        `json:"date,omitempty"`
	DeliveryDate    *string        `json:"delivery_date,omitempty"`
	ReferenceNumber *string        `json:"reference_number,omitempty"`
	BillingAddress  *order.Address `json:"billing_address,omitempty"`
	ShippingAddress *order.Address `json:"shipping_address,omitempty"`
}

// NewOrderPatch builds a patch carrying o's current value for each changed field.
func NewOrderPatch(o *order.Order, changed map[string]any) OrderPatch {
	var p OrderPatch
	for field := range changed {
		switch field {
		case "notes":
			p.Notes = ptr(o.Notes)
		case "status":
			p.Status = ptr(o.Status)
		case "date":
			p.Date = ptr(o.Date.Format(time.DateOnly))
		case "delivery_date":
			if o.DeliveryDate != nil {
				p.DeliveryDate = ptr(o.DeliveryDate.Format(time.DateOnly))
			}
		case "reference_number":
			p.ReferenceNumber = ptr(o.ReferenceNumber)
		case "billing_address":
			p.BillingAddress = ptr(o.BillingAddress)
		case "shipping_address":
			p.ShippingAddress = ptr(o.ShippingAddress)
		}
	}
	return p
}

// Empty reports whether the patch sets nothing.
func (p OrderPatch) Empty() bool {
	return p == OrderPatch{}
}

func ptr[T any](v T) *T { return &v }
