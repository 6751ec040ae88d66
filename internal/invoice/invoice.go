package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/shopspring/decimal"
)

// ErrNoExternalReference is returned when invoicing an order the system of
// record does not know about.
var ErrNoExternalReference = errors.New("order has no external sales order reference")

// Invoice is a billing document issued against an order by the system of record.
type Invoice struct {
	ID               string          `json:"id"`
	Number           string          `json:"invoice_number"`
	CustomerID       string          `json:"customer_id"`
	SalesOrderNumber string          `json:"salesorder_number"`
	Status           string          `json:"status"`
	Date             time.Time       `json:"date"`
	DueDate          *time.Time      `json:"due_date"`
	Total            decimal.Decimal `json:"total"`
	Balance          decimal.Decimal `json:"balance"`
}

// Paid is the settled part of the invoice.
func (inv Invoice) Paid() decimal.Decimal {
	return inv.Total.Sub(inv.Balance)
}

// Source lists and creates invoices. Satisfied by *upstream.Client.
type Source interface {
	ListInvoices(ctx context.Context, customerID string) ([]Invoice, error)
	CreateInvoice(ctx context.Context, externalID, agentID string) (Invoice, error)
}

// Linked is the set of invoices attached to one order.
type Linked struct {
	Invoices      []Invoice       `json:"invoices"`
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
}

// Overdue returns the unpaid invoices that are flagged overdue or past their due date.
func (l Linked) Overdue(now time.Time) []Invoice {
	today := truncateDay(now)
	out := []Invoice{}
	for _, inv := range l.Invoices {
		if inv.Status == enum.InvoiceStatusPaid || !inv.Balance.IsPositive() {
			continue
		}
		if inv.Status == enum.InvoiceStatusOverdue ||
			(inv.DueDate != nil && truncateDay(*inv.DueDate).Before(today)) {
			out = append(out, inv)
		}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Linker attaches invoices to orders by external sales order number.
// It does not reconcile invoice lines against order lines.
type Linker struct {
	source Source
}

func NewLinker(source Source) *Linker {
	return &Linker{source: source}
}

// Link fetches the customer's invoices and keeps those raised against o.
func (l *Linker) Link(ctx context.Context, o *order.Order) (Linked, error) {
	linked := Linked{Invoices: []Invoice{}}
	ref := strings.TrimSpace(o.ExternalNumber)
	if ref == "" || o.CustomerID == "" {
		return linked, nil
	}

	all, err := l.source.ListInvoices(ctx, o.CustomerID)
	if err != nil {
		return linked, fmt.Errorf("list invoices for customer %s: %w", o.CustomerID, err)
	}
	for _, inv := range all {
		if strings.TrimSpace(inv.SalesOrderNumber) != ref {
			continue
		}
		linked.Invoices = append(linked.Invoices, inv)
	}
	linked.TotalInvoiced, linked.TotalBalance, linked.TotalPaid = Sum(linked.Invoices)
	return linked, nil
}

// Sum totals the invoices' amounts, open balances, and paid amounts.
func Sum(invoices []Invoice) (invoiced, balance, paid decimal.Decimal) {
	for _, inv := range invoices {
		invoiced = invoiced.Add(inv.Total)
		balance = balance.Add(inv.Balance)
	}
	return invoiced, balance, invoiced.Sub(balance)
}

// CreateFromOrder asks the system of record to invoice o on behalf of agentID.
func (l *Linker) CreateFromOrder(ctx context.Context, o *order.Order, agentID string) (Invoice, error) {
	ref := strings.TrimSpace(o.ExternalNumber)
	if ref == "" {
		return Invoice{}, ErrNoExternalReference
	}
	if o.IsTerminal() {
		return Invoice{}, &order.InvalidTransitionError{From: o.Status, Action: ActionInvoice}
	}
	inv, err := l.source.CreateInvoice(ctx, ref, agentID)
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice for %s: %w", ref, err)
	}
	return inv, nil
}

// ActionInvoice names invoice creation in transition errors.
const ActionInvoice order.Action = "create_invoice"
