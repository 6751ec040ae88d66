package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/kiwari-pos/fulfillment/internal/upstream"
	"github.com/sirupsen/logrus"
)

// Events published to the order's live-update room.
const (
	EventOrderUpdated   = "order.updated"
	EventSyncCompleted  = "sync.completed"
	EventSyncFailed     = "sync.failed"
	EventInvoiceCreated = "invoice.created"
)

// ErrAlreadyRetried is returned when a failed operation already has a successor.
var ErrAlreadyRetried = errors.New("sync operation was already retried")

// Upstream defines the internal API calls needed by the order service.
// Satisfied by *upstream.Client; narrow interface for testability.
type Upstream interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateOrder(ctx context.Context, id string, patch upstream.OrderPatch) (*order.Order, error)
	SendToPacking(ctx context.Context, id string) (upstream.PackingResult, error)
	GetCustomer(ctx context.Context, id string) (upstream.Customer, error)
}

// Dispatcher records sync operations and forwards them in the background.
// Satisfied by *gateway.Gateway.
type Dispatcher interface {
	Dispatch(ctx context.Context, op gateway.SyncOperation, done func(gateway.SyncOperation)) error
}

// InvoiceLinker defines the invoice operations needed by the order service.
// Satisfied by *invoice.Linker.
type InvoiceLinker interface {
	Link(ctx context.Context, o *order.Order) (invoice.Linked, error)
	CreateFromOrder(ctx context.Context, o *order.Order, agentID string) (invoice.Invoice, error)
}

// Notifier publishes order events to connected clients.
// Satisfied by *ws.Hub.
type Notifier interface {
	Notify(orderID, eventType string, data any)
}

// MutationResult is the outcome of a local mutation. Operation is the sync
// operation dispatched for it, still pending when returned. SyncError is set
// when the operation could not be recorded and so was never sent; the
// mutation itself stands.
type MutationResult struct {
	Order     *order.Order           `json:"order"`
	Operation *gateway.SyncOperation `json:"sync_operation,omitempty"`
	SyncError string                 `json:"sync_error,omitempty"`
	Noop      bool                   `json:"noop,omitempty"`
}

// OrderService owns one in-memory order session per order id and coordinates
// local mutations with the internal API and the sync gateway.
type OrderService struct {
	upstream Upstream
	sync     Dispatcher
	log      gateway.Log
	invoices InvoiceLinker
	notifier Notifier
	inflight *gateway.InFlight
	source   string
	logger   logrus.FieldLogger
	now      func() time.Time

	mu         sync.Mutex
	sessions   map[string]*order.Order
	unrecorded map[uuid.UUID]gateway.SyncOperation // never reached the Log, kept for RetrySync
}

// NewOrderService creates a new OrderService. notifier may be nil.
func NewOrderService(up Upstream, dispatcher Dispatcher, log gateway.Log, invoices InvoiceLinker,
	notifier Notifier, source string, logger logrus.FieldLogger) *OrderService {
	return &OrderService{
		upstream:   up,
		sync:       dispatcher,
		log:        log,
		invoices:   invoices,
		notifier:   notifier,
		inflight:   gateway.NewInFlight(),
		source:     source,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*order.Order),
		unrecorded: make(map[uuid.UUID]gateway.SyncOperation),
	}
}

// Edit applies an edit locally, makes it authoritative with a PUT, and
// forwards it to the order of record.
func (s *OrderService) Edit(ctx context.Context, id string, req order.EditRequest) (*MutationResult, error) {
	release, err := s.inflight.Acquire(id)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := o.Clone()
	changes, err := order.Edit(o, req, s.now())
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return &MutationResult{Order: snapshot, Noop: true}, nil
	}

	o, err = s.commit(ctx, id, o, snapshot, upstream.NewOrderPatch(o, changes))
	if err != nil {
		return nil, err
	}
	if _, ok := changes["notes"]; ok {
		changes["notes"] = o.Notes
	}
	if _, ok := changes["status"]; ok {
		changes["status"] = o.Status
	}
	op, err := s.forward(o, enum.SyncKindUpdate, changes, release)
	handedOff = err == nil
	return s.forwarded(id, o, op, err)
}

// Cancel cancels the order with a required reason appended to its notes.
func (s *OrderService) Cancel(ctx context.Context, id, reason string) (*MutationResult, error) {
	release, err := s.inflight.Acquire(id)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := o.Clone()
	if err := order.Cancel(o, reason, s.now()); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	patch := upstream.OrderPatch{Status: &o.Status, Notes: &o.Notes}
	o, err = s.commit(ctx, id, o, snapshot, patch)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		"status": o.Status,
		"notes":  o.Notes,
		"reason": reason,
	}
	op, err := s.forward(o, enum.SyncKindCancel, updates, release)
	handedOff = err == nil
	return s.forwarded(id, o, op, err)
}

// SendToPacking hands a confirmed order to the warehouse. A processing order
// is left alone without calling out.
func (s *OrderService) SendToPacking(ctx context.Context, id string) (*MutationResult, error) {
	release, err := s.inflight.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	noop, err := order.SendToPacking(o, s.now())
	if err != nil {
		return nil, err
	}
	if noop {
		return &MutationResult{Order: o, Noop: true}, nil
	}

	res, err := s.upstream.SendToPacking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("send to packing: %w", err)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "send to packing was rejected"
		}
		return nil, &upstream.RejectedError{StatusCode: http.StatusUnprocessableEntity, Message: msg}
	}

	// Packages may not exist yet; the warehouse creates them asynchronously.
	fresh, err := s.upstream.GetOrder(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Warn("refetch after send to packing failed")
		fresh = o
	} else {
		fresh.LastSyncError = o.LastSyncError
		if fresh.Status == enum.OrderStatusConfirmed {
			fresh.Status = enum.OrderStatusProcessing
		}
	}
	s.put(id, fresh)
	s.notify(id, EventOrderUpdated, fresh)
	return &MutationResult{Order: fresh.Clone()}, nil
}

// Resend forwards the current order snapshot again as a new operation.
func (s *OrderService) Resend(ctx context.Context, id string) (*MutationResult, error) {
	release, err := s.inflight.Acquire(id)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	op, err := s.forward(o, enum.SyncKindResend, nil, release)
	if err != nil {
		return nil, err
	}
	handedOff = true
	return &MutationResult{Order: o, Operation: &op}, nil
}

// RetrySync re-issues a failed operation with its payload unchanged. An
// operation left pending is retryable too: holding the order's in-flight
// guard means no send for it is still running. An operation that never
// reached the Log is dispatched again as is.
func (s *OrderService) RetrySync(ctx context.Context, id string, opID uuid.UUID) (*gateway.SyncOperation, error) {
	release, err := s.inflight.Acquire(id)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	failed, err := s.log.Get(ctx, opID)
	if errors.Is(err, gateway.ErrOperationNotFound) {
		kept, ok := s.unrecordedOp(opID)
		if !ok || kept.OrderID != id {
			return nil, err
		}
		if err := s.dispatch(kept, release); err != nil {
			return nil, err
		}
		handedOff = true
		return &kept, nil
	}
	if err != nil {
		return nil, err
	}
	if failed.OrderID != id {
		return nil, gateway.ErrOperationNotFound
	}
	if !failed.Failed() && !failed.Pending() {
		return nil, gateway.ErrNotRetryable
	}

	history, err := s.log.ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		if h.Supersedes != nil && *h.Supersedes == failed.ID {
			return nil, ErrAlreadyRetried
		}
	}

	retry, err := gateway.Retry(failed, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.dispatch(retry, release); err != nil {
		return nil, err
	}
	handedOff = true
	return &retry, nil
}

// SyncHistory lists the order's recorded sync operations, oldest first.
func (s *OrderService) SyncHistory(ctx context.Context, id string) ([]gateway.SyncOperation, error) {
	return s.log.ListByOrder(ctx, id)
}

// Invoices returns the invoices linked to the order.
func (s *OrderService) Invoices(ctx context.Context, id string) (invoice.Linked, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return invoice.Linked{}, err
	}
	return s.invoices.Link(ctx, o)
}

// CreateInvoice invoices the order on behalf of agentID.
func (s *OrderService) CreateInvoice(ctx context.Context, id, agentID string) (invoice.Invoice, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv, err := s.invoices.CreateFromOrder(ctx, o, agentID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	s.notify(id, EventInvoiceCreated, inv)
	return inv, nil
}

// commit stores o as the session's local truth and makes it authoritative.
// A rejected PUT restores snapshot. For a patched status or notes the value
// the internal API answers with wins, since it may normalize them; every
// other field stays as edited locally.
func (s *OrderService) commit(ctx context.Context, id string, o, snapshot *order.Order, patch upstream.OrderPatch) (*order.Order, error) {
	s.put(id, o)
	saved, err := s.upstream.UpdateOrder(ctx, id, patch)
	if err != nil {
		s.put(id, snapshot)
		s.logger.WithError(err).WithField("order_id", id).Warn("order update rejected, local change rolled back")
		return nil, err
	}
	if saved != nil {
		if patch.Status != nil && saved.Status != "" {
			o.Status = saved.Status
		}
		if patch.Notes != nil {
			o.Notes = saved.Notes
		}
		s.put(id, o)
	}
	s.notify(id, EventOrderUpdated, o)
	return o, nil
}

// forward builds a sync operation for o and dispatches it. release is
// called once the operation finishes. When the operation cannot be recorded
// it is returned along with an error wrapping gateway.ErrNotRecorded, and
// release is left to the caller.
func (s *OrderService) forward(o *order.Order, kind string, updates map[string]any, release func()) (gateway.SyncOperation, error) {
	now := s.now()
	payload := gateway.BuildPayload(o, kind, updates, s.source, now)
	op, err := gateway.NewOperation(o.ID, o.ExternalNumber, kind, payload, now)
	if err != nil {
		return gateway.SyncOperation{}, fmt.Errorf("build sync operation: %w", err)
	}
	return op, s.dispatch(op, release)
}

// forwarded builds the result of a committed mutation. An operation that could
// not be recorded does not undo the mutation; it is reported on the result.
func (s *OrderService) forwarded(id string, o *order.Order, op gateway.SyncOperation, err error) (*MutationResult, error) {
	if err == nil {
		return &MutationResult{Order: o, Operation: &op}, nil
	}
	if !errors.Is(err, gateway.ErrNotRecorded) {
		return nil, err
	}
	if current, ok := s.session(id); ok {
		o = current
	}
	return &MutationResult{Order: o, Operation: &op, SyncError: err.Error()}, nil
}

func (s *OrderService) dispatch(op gateway.SyncOperation, release func()) error {
	entry := s.logger.WithFields(logrus.Fields{
		"order_id":     op.OrderID,
		"operation_id": op.ID,
		"kind":         op.Kind,
	})
	entry.Debug("dispatching sync operation")

	err := s.sync.Dispatch(context.Background(), op, func(done gateway.SyncOperation) {
		defer release()
		s.completeSync(done)
	})
	if err != nil {
		entry.WithError(err).Error("sync operation not dispatched")
		s.keepUnrecorded(op, err)
		return err
	}

	s.mu.Lock()
	delete(s.unrecorded, op.ID)
	s.mu.Unlock()
	return nil
}

// keepUnrecorded holds on to an operation the Log refused so it can still be
// retried, and reports it on the session like a failed sync.
func (s *OrderService) keepUnrecorded(op gateway.SyncOperation, err error) {
	s.mu.Lock()
	s.unrecorded[op.ID] = op
	if o, ok := s.sessions[op.OrderID]; ok {
		o.LastSyncError = &order.SyncFailure{
			OperationID: op.ID.String(),
			Kind:        op.Kind,
			ErrorKind:   enum.SyncErrorUnrecorded,
			Message:     err.Error(),
			At:          s.now(),
		}
	}
	s.mu.Unlock()

	failed := op
	failed.Outcome = enum.SyncOutcomeFailed
	failed.ErrorKind = enum.SyncErrorUnrecorded
	failed.Error = err.Error()
	s.notify(op.OrderID, EventSyncFailed, failed)
}

func (s *OrderService) unrecordedOp(id uuid.UUID) (gateway.SyncOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.unrecorded[id]
	return op, ok
}

// completeSync records the outcome on the session. The local mutation is
// never reverted.
func (s *OrderService) completeSync(op gateway.SyncOperation) {
	s.mu.Lock()
	if o, ok := s.sessions[op.OrderID]; ok {
		if op.Failed() {
			at := s.now()
			if op.CompletedAt != nil {
				at = *op.CompletedAt
			}
			o.LastSyncError = &order.SyncFailure{
				OperationID: op.ID.String(),
				Kind:        op.Kind,
				ErrorKind:   op.ErrorKind,
				Message:     op.Error,
				At:          at,
			}
		} else {
			o.LastSyncError = nil
		}
	}
	s.mu.Unlock()

	if op.Failed() {
		s.notify(op.OrderID, EventSyncFailed, op)
	} else {
		s.notify(op.OrderID, EventSyncCompleted, op)
	}
}

// load returns a copy of the session's order, fetching it on first use.
func (s *OrderService) load(ctx context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	o, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return o.Clone(), nil
	}

	fetched, err := s.upstream.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing.Clone(), nil
	}
	s.sessions[id] = fetched
	return fetched.Clone(), nil
}

// session returns a copy of the cached order without fetching it.
func (s *OrderService) session(id string) (*order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// put replaces the session's order with a copy of o.
func (s *OrderService) put(id string, o *order.Order) {
	s.mu.Lock()
	s.sessions[id] = o.Clone()
	s.mu.Unlock()
}

// Forget drops the session for id. The next access refetches the order.
func (s *OrderService) Forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *OrderService) notify(orderID, eventType string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(orderID, eventType, data)
}
