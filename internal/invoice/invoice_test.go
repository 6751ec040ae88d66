package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	listInvoicesFn  func(ctx context.Context, customerID string) ([]Invoice, error)
	createInvoiceFn func(ctx context.Context, externalID, agentID string) (Invoice, error)
}

func (m *mockSource) ListInvoices(ctx context.Context, customerID string) ([]Invoice, error) {
	return m.listInvoicesFn(ctx, customerID)
}

func (m *mockSource) CreateInvoice(ctx context.Context, externalID, agentID string) (Invoice, error) {
	return m.createInvoiceFn(ctx, externalID, agentID)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLink_FiltersByExternalNumber(t *testing.T) {
	src := &mockSource{
		listInvoicesFn: func(ctx context.Context, customerID string) ([]Invoice, error) {
			assert.Equal(t, "cust-1", customerID)
			return []Invoice{
				{ID: "inv-1", SalesOrderNumber: "SO-00001", Total: d("100.00"), Balance: d("0")},
				{ID: "inv-2", SalesOrderNumber: "SO-00002", Total: d("999.00"), Balance: d("999.00")},
				{ID: "inv-3", SalesOrderNumber: "SO-00001", Total: d("50.50"), Balance: d("20.25")},
			}, nil
		},
	}
	o := &order.Order{ID: "so-1", ExternalNumber: "SO-00001", CustomerID: "cust-1"}

	linked, err := NewLinker(src).Link(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, linked.Invoices, 2)
	assert.Equal(t, "150.50", linked.TotalInvoiced.StringFixed(2))
	assert.Equal(t, "20.25", linked.TotalBalance.StringFixed(2))
	assert.Equal(t, "130.25", linked.TotalPaid.StringFixed(2))
}

func TestLink_NoExternalNumberSkipsFetch(t *testing.T) {
	src := &mockSource{
		listInvoicesFn: func(ctx context.Context, customerID string) ([]Invoice, error) {
			t.Fatal("ListInvoices should not be called")
			return nil, nil
		},
	}
	linked, err := NewLinker(src).Link(context.Background(), &order.Order{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Empty(t, linked.Invoices)
	assert.True(t, linked.TotalInvoiced.IsZero())
}

func TestLink_SourceError(t *testing.T) {
	boom := errors.New("upstream down")
	src := &mockSource{
		listInvoicesFn: func(ctx context.Context, customerID string) ([]Invoice, error) {
			return nil, boom
		},
	}
	_, err := NewLinker(src).Link(context.Background(), &order.Order{ExternalNumber: "SO-1", CustomerID: "c"})
	assert.ErrorIs(t, err, boom)
}

func TestCreateFromOrder_NoExternalReference(t *testing.T) {
	src := &mockSource{
		createInvoiceFn: func(ctx context.Context, externalID, agentID string) (Invoice, error) {
			t.Fatal("CreateInvoice should not be called")
			return Invoice{}, nil
		},
	}
	_, err := NewLinker(src).CreateFromOrder(context.Background(), &order.Order{ID: "so-1", Status: enum.OrderStatusConfirmed}, "agent-1")
	assert.ErrorIs(t, err, ErrNoExternalReference)
}

func TestCreateFromOrder_TerminalOrder(t *testing.T) {
	src := &mockSource{}
	_, err := NewLinker(src).CreateFromOrder(context.Background(),
		&order.Order{ExternalNumber: "SO-1", Status: enum.OrderStatusVoid}, "agent-1")
	assert.True(t, order.IsInvalidTransition(err))
}

func TestCreateFromOrder_Success(t *testing.T) {
	src := &mockSource{
		createInvoiceFn: func(ctx context.Context, externalID, agentID string) (Invoice, error) {
			assert.Equal(t, "SO-00001", externalID)
			assert.Equal(t, "agent-1", agentID)
			return Invoice{ID: "inv-9", SalesOrderNumber: externalID, Status: enum.InvoiceStatusDraft}, nil
		},
	}
	inv, err := NewLinker(src).CreateFromOrder(context.Background(),
		&order.Order{ExternalNumber: "SO-00001", Status: enum.OrderStatusConfirmed}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-9", inv.ID)
}

func TestLinked_Overdue(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	today := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	l := Linked{Invoices: []Invoice{
		{ID: "past-due", Status: enum.InvoiceStatusSent, DueDate: &yesterday, Balance: d("10")},
		{ID: "due-today", Status: enum.InvoiceStatusSent, DueDate: &today, Balance: d("10")},
		{ID: "flagged", Status: enum.InvoiceStatusOverdue, Balance: d("5")},
		{ID: "paid", Status: enum.InvoiceStatusPaid, DueDate: &yesterday, Balance: d("0")},
		{ID: "settled", Status: enum.InvoiceStatusSent, DueDate: &yesterday, Balance: d("0")},
	}}

	var ids []string
	for _, inv := range l.Overdue(now) {
		ids = append(ids, inv.ID)
	}
	assert.Equal(t, []string{"past-due", "flagged"}, ids)
}
