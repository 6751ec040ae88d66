package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/sirupsen/logrus"
)

type syncOperationListResponse struct {
	SyncOperations []gateway.SyncOperation `json:"sync_operations"`
}

// ListSyncOperations handles GET /orders/{id}/sync-operations.
func (h *OrderHandler) ListSyncOperations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ops, err := h.svc.SyncHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger.WithField("order_id", id), "list sync operations", err)
		return
	}
	if ops == nil {
		ops = []gateway.SyncOperation{}
	}
	writeJSON(w, http.StatusOK, syncOperationListResponse{SyncOperations: ops})
}

// RetrySync handles POST /orders/{id}/sync-operations/{opid}/retry.
func (h *OrderHandler) RetrySync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opID, err := uuid.Parse(chi.URLParam(r, "opid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid operation ID"})
		return
	}

	op, err := h.svc.RetrySync(r.Context(), id, opID)
	if err != nil {
		writeServiceError(w, h.logger.WithFields(logrus.Fields{
			"order_id":     id,
			"operation_id": opID,
		}), "retry sync operation", err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}
