package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/middleware"
)

// ListInvoices handles GET /orders/{id}/invoices.
func (h *OrderHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	linked, err := h.svc.Invoices(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, linked)
}

// CreateInvoice handles POST /orders/{id}/invoices on behalf of the caller's agent.
func (h *OrderHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id := chi.URLParam(r, "id")
	inv, err := h.svc.CreateInvoice(r.Context(), id, claims.AgentID)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}
