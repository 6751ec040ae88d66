package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderJSON = `{
	"salesorder_id": "so-1",
	"salesorder_number": "SO-00001",
	"status": "confirmed",
	"date": "2026-10-01",
	"delivery_date": "2026-10-20",
	"customer_id": "cust-1",
	"customer_name": "Toko Sinar",
	"notes": "deliver before noon",
	"discount": "5.00",
	"shipping_charge": 10,
	"tax_total": "0",
	"adjustment": "0",
	"sub_total": "9999.99",
	"total": "9999.99",
	"line_items": [
		{"line_item_id": "li-1", "sku": "A", "rate": "12.50", "quantity": 2, "quantity_shipped": 1},
		{"line_item_id": "li-2", "sku": "B", "rate": 3, "quantity": 5}
	],
	"packages": [
		{"package_id": "pk-1", "package_number": "PKG-1", "carrier": "JNE", "shipment_date": "2026-10-03"}
	],
	"last_modified_time": "2026-10-03T08:00:00Z"
}`

func newTestServer(t *testing.T, setup func(r chi.Router)) (*Client, *httptest.Server) {
	t.Helper()
	r := chi.NewRouter()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", time.Second), srv
}

func TestGetOrder_ConvertsAndRecomputesTotals(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Get("/salesorders/{id}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "so-1", chi.URLParam(r, "id"))
			_, _ = w.Write([]byte(orderJSON))
		})
	})

	o, err := c.GetOrder(context.Background(), "so-1")
	require.NoError(t, err)
	assert.Equal(t, "SO-00001", o.ExternalNumber)
	assert.Equal(t, enum.OrderStatusConfirmed, o.Status)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), o.Date)
	require.NotNil(t, o.DeliveryDate)
	require.Len(t, o.LineItems, 2)
	assert.Equal(t, 1, o.LineItems[0].Shipped)
	require.Len(t, o.Packages, 1)
	require.NotNil(t, o.Packages[0].ShipmentDate)

	// 2×12.50 + 5×3 = 40; 40 − 5 + 10 = 45
	assert.Equal(t, "40.00", o.Totals.Subtotal.StringFixed(2))
	assert.Equal(t, "45.00", o.Totals.Total.StringFixed(2))
	assert.True(t, o.Totals.Consistent())
}

func TestGetOrder_NotFound(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {})
	_, err := c.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestUpdateOrder_SendsOnlyChangedFields(t *testing.T) {
	var body map[string]any
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Put("/salesorders/{id}", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = w.Write([]byte(orderJSON))
		})
	})

	o := &order.Order{Notes: "new note", Status: enum.OrderStatusConfirmed}
	patch := NewOrderPatch(o, map[string]any{"notes": "new note"})
	_, err := c.UpdateOrder(context.Background(), "so-1", patch)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"notes": "new note"}, body)
}

func TestUpdateOrder_RejectionKeepsServerMessage(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Put("/salesorders/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"Order SO-00001 is locked by an open invoice"}`))
		})
	})

	_, err := c.UpdateOrder(context.Background(), "so-1", OrderPatch{Notes: ptr("x")})
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, http.StatusUnprocessableEntity, rej.StatusCode)
	assert.Equal(t, "Order SO-00001 is locked by an open invoice", rej.Message)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "a", errorMessage(400, []byte(`{"error":"a"}`)))
	assert.Equal(t, "b", errorMessage(400, []byte(`{"message":"b"}`)))
	assert.Equal(t, "plain text", errorMessage(400, []byte("  plain text \n")))
	assert.Equal(t, "502 Bad Gateway", errorMessage(502, nil))
}

func TestSendToPacking(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Post("/shipping/send-to-packing", func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"order_id":"so-1"}`, string(b))
			_, _ = w.Write([]byte(`{"success":false,"message":"warehouse closed"}`))
		})
	})

	res, err := c.SendToPacking(context.Background(), "so-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "warehouse closed", res.Message)
}

func TestListInvoices(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Get("/invoices", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "cust-1", r.URL.Query().Get("customer_id"))
			_, _ = w.Write([]byte(`{"invoices":[
				{"invoice_id":"inv-1","invoice_number":"INV-1","salesorder_number":"SO-00001","status":"sent","date":"2026-10-05","due_date":"2026-11-05","total":"45.00","balance":"45.00"},
				{"invoice_id":"inv-2","invoice_number":"INV-2","salesorder_number":"SO-00002","status":"paid","date":"2026-10-06","total":12,"balance":0}
			]}`))
		})
	})

	invs, err := c.ListInvoices(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "45.00", invs[0].Total.StringFixed(2))
	require.NotNil(t, invs[0].DueDate)
	assert.Nil(t, invs[1].DueDate)
}

func TestCreateInvoice(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Post("/invoices", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "SO-00001", body["salesorder_id"])
			assert.Equal(t, "agent-7", body["agent_id"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"invoice_id":"inv-3","invoice_number":"INV-3","salesorder_number":"SO-00001","status":"draft","date":"2026-10-16","total":"45","balance":"45"}`))
		})
	})

	inv, err := c.CreateInvoice(context.Background(), "SO-00001", "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "inv-3", inv.ID)
	assert.Equal(t, enum.InvoiceStatusDraft, inv.Status)
}

func TestGetCustomer(t *testing.T) {
	c, _ := newTestServer(t, func(r chi.Router) {
		r.Get("/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"cust-1","name":"Toko Sinar","billing_address":{"city":"Bandung"}}`))
		})
	})

	cust, err := c.GetCustomer(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "Bandung", cust.BillingAddress.City)
}

func TestNewOrderPatch(t *testing.T) {
	dd := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	o := &order.Order{
		Status:       enum.OrderStatusCancelled,
		Notes:        "a\nCANCELLED: customer request",
		Date:         time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		DeliveryDate: &dd,
	}
	p := NewOrderPatch(o, map[string]any{"status": "", "notes": "", "delivery_date": ""})
	require.NotNil(t, p.Status)
	assert.Equal(t, enum.OrderStatusCancelled, *p.Status)
	require.NotNil(t, p.DeliveryDate)
	assert.Equal(t, "2026-10-20", *p.DeliveryDate)
	assert.Nil(t, p.Date)
	assert.False(t, p.Empty())
	assert.True(t, NewOrderPatch(o, nil).Empty())
}
