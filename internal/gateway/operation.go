package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// SyncOperation is an outbound record of a mutation intended for the system of record.
// An operation is recorded as pending before it is sent and its outcome is recorded
// separately once known; neither record changes afterwards. A retry is a new
// operation that supersedes the failed or interrupted one.
type SyncOperation struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	Kind           string          `json:"kind"`
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	Outcome        string          `json:"outcome"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	Error          string          `json:"error,omitempty"`
	StatusCode     int             `json:"status_code,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Supersedes     *uuid.UUID      `json:"supersedes,omitempty"`
}

// Ack is the system of record's acknowledgement of a delivered operation.
type Ack struct {
	StatusCode int
	Body       string
}

var (
	ErrOperationNotFound = errors.New("sync operation not found")
	ErrNotRetryable      = errors.New("only failed or interrupted sync operations can be retried")
	ErrSyncInFlight      = errors.New("a sync for this order is still in flight")
	ErrInvalidKind       = errors.New("invalid sync kind")
	ErrNotRecorded       = errors.New("sync operation could not be recorded")
)

// NewOperation creates a pending operation with a fresh idempotency key
// embedded in the payload.
func NewOperation(orderID, orderNumber, kind string, payload Payload, now time.Time) (SyncOperation, error) {
	if !validKind(kind) {
		return SyncOperation{}, ErrInvalidKind
	}
	key := uuid.New()
	payload.OperationID = key.String()
	raw, err := json.Marshal(payload)
	if err != nil {
		return SyncOperation{}, err
	}
	return SyncOperation{
		ID:             uuid.New(),
		OrderID:        orderID,
		OrderNumber:    orderNumber,
		Kind:           kind,
		IdempotencyKey: key,
		Payload:        raw,
		CreatedAt:      now,
		Outcome:        enum.SyncOutcomePending,
	}, nil
}

// Retry builds the operation that re-issues a failed or interrupted one.
// Payload and idempotency key are carried over byte for byte, so a receiver
// that already applied an interrupted send ignores the retry.
func Retry(failed SyncOperation, now time.Time) (SyncOperation, error) {
	if failed.Outcome == enum.SyncOutcomeSuccess {
		return SyncOperation{}, ErrNotRetryable
	}
	prev := failed.ID
	payload := make(json.RawMessage, len(failed.Payload))
	copy(payload, failed.Payload)
	return SyncOperation{
		ID:             uuid.New(),
		OrderID:        failed.OrderID,
		OrderNumber:    failed.OrderNumber,
		Kind:           failed.Kind,
		IdempotencyKey: failed.IdempotencyKey,
		Payload:        payload,
		CreatedAt:      now,
		Outcome:        enum.SyncOutcomePending,
		Supersedes:     &prev,
	}, nil
}

// complete returns a copy of op carrying the outcome of a send.
func (op SyncOperation) complete(ack Ack, err error, now time.Time) SyncOperation {
	done := op
	done.CompletedAt = &now
	if err == nil {
		done.Outcome = enum.SyncOutcomeSuccess
		done.StatusCode = ack.StatusCode
		return done
	}

	done.Outcome = enum.SyncOutcomeFailed
	done.Error = err.Error()

	var te *TimeoutError
	var se *SyncError
	switch {
	case errors.As(err, &te):
		done.ErrorKind = enum.SyncErrorTimeout
	case errors.As(err, &se):
		done.ErrorKind = enum.SyncErrorRejected
		done.StatusCode = se.StatusCode
	default:
		done.ErrorKind = enum.SyncErrorRejected
	}
	return done
}

// Failed reports whether the operation finished unsuccessfully.
func (op SyncOperation) Failed() bool {
	return op.Outcome == enum.SyncOutcomeFailed
}

// Pending reports whether no outcome has been recorded for the operation.
func (op SyncOperation) Pending() bool {
	return op.Outcome == enum.SyncOutcomePending
}

// Interrupted reports whether a pending operation is older than any send
// could still be running: the sender gave up or the process died.
func (op SyncOperation) Interrupted(now time.Time, sendTimeout time.Duration) bool {
	return op.Pending() && now.Sub(op.CreatedAt) > sendTimeout+recordTimeout
}

func validKind(kind string) bool {
	switch kind {
	case enum.SyncKindUpdate, enum.SyncKindCancel, enum.SyncKindResend:
		return true
	}
	return false
}
