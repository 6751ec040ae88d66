package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/kiwari-pos/fulfillment/internal/upstream"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("encode JSON response")
	}
}

// writeServiceError maps a service error onto a status code. Rejections by
// the internal API are passed through with their message unchanged.
func writeServiceError(w http.ResponseWriter, logger logrus.FieldLogger, op string, err error) {
	var (
		validation *order.ValidationError
		transition *order.InvalidTransitionError
		rejected   *upstream.RejectedError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": transition.Error()})
	case errors.Is(err, gateway.ErrSyncInFlight),
		errors.Is(err, gateway.ErrNotRetryable),
		errors.Is(err, service.ErrAlreadyRetried):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, gateway.ErrOperationNotFound),
		errors.Is(err, upstream.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, gateway.ErrNotRecorded):
		logger.WithError(err).Error(op)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": gateway.ErrNotRecorded.Error()})
	case errors.Is(err, invoice.ErrNoExternalReference):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": rejected.Message})
	case errors.Is(err, context.DeadlineExceeded):
		logger.WithError(err).Warn(op)
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "internal API timed out"})
	default:
		logger.WithError(err).Error(op)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
