package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/middleware"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/sirupsen/logrus"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	View(ctx context.Context, id string) (*service.OrderView, error)
	Edit(ctx context.Context, id string, req order.EditRequest) (*service.MutationResult, error)
	Cancel(ctx context.Context, id, reason string) (*service.MutationResult, error)
	SendToPacking(ctx context.Context, id string) (*service.MutationResult, error)
	Resend(ctx context.Context, id string) (*service.MutationResult, error)
	RetrySync(ctx context.Context, id string, opID uuid.UUID) (*gateway.SyncOperation, error)
	SyncHistory(ctx context.Context, id string) ([]gateway.SyncOperation, error)
	Invoices(ctx context.Context, id string) (invoice.Linked, error)
	CreateInvoice(ctx context.Context, id, agentID string) (invoice.Invoice, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	logger logrus.FieldLogger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, logger logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted behind Authenticate at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Get("/{id}/sync-operations", h.ListSyncOperations)
	r.Get("/{id}/invoices", h.ListInvoices)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleAdmin, enum.RoleSales))
		r.Patch("/{id}", h.Edit)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/resend", h.Resend)
		r.Post("/{id}/sync-operations/{opid}/retry", h.RetrySync)
		r.With(middleware.RequireAgent).Post("/{id}/invoices", h.CreateInvoice)
	})

	r.With(middleware.RequireRole(enum.RoleAdmin, enum.RoleSales, enum.RoleWarehouse)).
		Post("/{id}/send-to-packing", h.SendToPacking)
}

// --- Request types ---

// editOrderRequest carries dates as YYYY-MM-DD.
type editOrderRequest struct {
	Notes           *string        `json:"notes"`
	Date            *string        `json:"date"`
	DeliveryDate    *string        `json:"delivery_date"`
	ReferenceNumber *string        `json:"reference_number"`
	Status          *string        `json:"status"`
	BillingAddress  *order.Address `json:"billing_address"`
	ShippingAddress *order.Address `json:"shipping_address"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (req editOrderRequest) toDomain() (order.EditRequest, string) {
	out := order.EditRequest{
		Notes:           req.Notes,
		ReferenceNumber: req.ReferenceNumber,
		Status:          req.Status,
		BillingAddress:  req.BillingAddress,
		ShippingAddress: req.ShippingAddress,
	}
	if req.Date != nil {
		d, err := time.Parse(time.DateOnly, strings.TrimSpace(*req.Date))
		if err != nil {
			return out, "invalid date format, use YYYY-MM-DD"
		}
		out.Date = &d
	}
	if req.DeliveryDate != nil {
		d, err := time.Parse(time.DateOnly, strings.TrimSpace(*req.DeliveryDate))
		if err != nil {
			return out, "invalid delivery_date format, use YYYY-MM-DD"
		}
		out.DeliveryDate = &d
	}
	return out, ""
}

// --- Handlers ---

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.svc.View(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "view order", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Edit handles PATCH /orders/{id}.
func (h *OrderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req editOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	edit, msg := req.toDomain()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	res, err := h.svc.Edit(r.Context(), id, edit)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "edit order", err)
		return
	}
	writeMutation(w, res)
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "cancel order", err)
		return
	}
	writeMutation(w, res)
}

// SendToPacking handles POST /orders/{id}/send-to-packing.
func (h *OrderHandler) SendToPacking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.SendToPacking(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "send to packing", err)
		return
	}
	writeMutation(w, res)
}

// Resend handles POST /orders/{id}/resend.
func (h *OrderHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.Resend(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "resend order", err)
		return
	}
	writeMutation(w, res)
}

// writeMutation answers 202 while a sync operation is pending, 200 otherwise.
func writeMutation(w http.ResponseWriter, res *service.MutationResult) {
	if res.Operation != nil && res.SyncError == "" {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
