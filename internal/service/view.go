package service

import (
	"context"

	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/kiwari-pos/fulfillment/internal/upstream"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// OrderView is everything the back office shows for one order. Optional parts
// that failed to load are nil and their error is listed under Errors.
type OrderView struct {
	Order          *order.Order                 `json:"order"`
	Ledger         order.LedgerResult           `json:"ledger"`
	Anomalies      []*order.OverShipmentAnomaly `json:"anomalies"`
	Stage          order.Stage                  `json:"stage"`
	Shipment       order.ShipmentSummary        `json:"shipment"`
	AllowedActions []order.Action               `json:"allowed_actions"`
	Discrepancies  []order.Discrepancy          `json:"discrepancies"`
	Invoices       *invoice.Linked              `json:"invoices"`
	Customer       *upstream.Customer           `json:"customer"`
	SyncHistory    []gateway.SyncOperation      `json:"sync_history"`
	SyncInFlight   bool                         `json:"sync_in_flight"`
	Errors         map[string]string            `json:"errors,omitempty"`
}

// View refreshes the order from the internal API and assembles its view.
// Invoices, customer and sync history are fetched concurrently; a failure in
// one of them is recorded and never hides the others.
func (s *OrderService) View(ctx context.Context, id string) (*OrderView, error) {
	o, err := s.refresh(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &OrderView{
		Order:          o,
		Anomalies:      []*order.OverShipmentAnomaly{},
		AllowedActions: order.AllowedActions(o.Status),
		SyncInFlight:   s.inflight.Busy(id),
		Errors:         map[string]string{},
	}

	var (
		linked   invoice.Linked
		cust     upstream.Customer
		history  []gateway.SyncOperation
		errs     [3]error
		g, gctx  = errgroup.WithContext(ctx)
		customer = o.CustomerID != ""
	)
	g.Go(func() error {
		linked, errs[0] = s.invoices.Link(gctx, o)
		return nil
	})
	if customer {
		g.Go(func() error {
			cust, errs[1] = s.upstream.GetCustomer(gctx, o.CustomerID)
			return nil
		})
	}
	g.Go(func() error {
		history, errs[2] = s.log.ListByOrder(gctx, id)
		return nil
	})
	_ = g.Wait()

	if errs[0] != nil {
		v.Errors["invoices"] = errs[0].Error()
	} else {
		v.Invoices = &linked
	}
	if errs[1] != nil {
		v.Errors["customer"] = errs[1].Error()
	} else if customer {
		v.Customer = &cust
	}
	if errs[2] != nil {
		v.Errors["sync_history"] = errs[2].Error()
	} else {
		v.SyncHistory = history
	}

	ledger, err := order.Ledger(o.LineItems)
	if err != nil {
		v.Errors["ledger"] = err.Error()
	}
	v.Ledger = ledger
	if ledger.Anomalies != nil {
		v.Anomalies = ledger.Anomalies
	}
	v.Stage = order.Progress(o)
	v.Shipment = order.Summarize(o, ledger)

	invoiced := decimal.Zero
	if v.Invoices != nil {
		invoiced = v.Invoices.TotalInvoiced
	}
	v.Discrepancies = order.Reconcile(o, ledger, invoiced)

	if len(v.Errors) == 0 {
		v.Errors = nil
	}
	return v, nil
}

// refresh fetches the order and makes it the session's copy. Locally recorded
// sync failures survive the refresh. While a mutation is outstanding the
// session copy is kept as is.
func (s *OrderService) refresh(ctx context.Context, id string) (*order.Order, error) {
	if s.inflight.Busy(id) {
		return s.load(ctx, id)
	}

	fetched, err := s.upstream.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[id]; ok && prev.LastSyncError != nil {
		f := *prev.LastSyncError
		fetched.LastSyncError = &f
	}
	s.sessions[id] = fetched
	return fetched.Clone(), nil
}
