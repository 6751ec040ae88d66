package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// recordTimeout bounds each write to the Log.
const recordTimeout = 5 * time.Second

// Gateway forwards sync operations to the system of record. Every operation
// is in the Log before it is sent, so none is lost when the outcome cannot be
// recorded or the process dies mid-send. It never retries on its own and never
// de-duplicates; the receiver applies operations idempotently by their key.
type Gateway struct {
	sender  Sender
	log     Log
	logger  logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// New creates a Gateway. timeout bounds each send, including sends whose
// caller context has no deadline.
func New(sender Sender, log Log, timeout time.Duration, logger logrus.FieldLogger) *Gateway {
	return &Gateway{
		sender:  sender,
		log:     log,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Log returns the audit trail the gateway appends to.
func (g *Gateway) Log() Log {
	return g.log
}

// SendNow records op, delivers it synchronously and returns it with its
// outcome. An op that cannot be recorded is not sent and is returned pending
// with the error. An error after delivery means the outcome was not recorded;
// the op stays pending in the Log and can be retried.
func (g *Gateway) SendNow(ctx context.Context, op SyncOperation) (SyncOperation, error) {
	if err := g.record(ctx, op); err != nil {
		return op, err
	}
	return g.deliver(ctx, op)
}

// Dispatch records op and delivers it in the background, calling done with
// the finished operation. The send is detached from the caller's cancellation
// but still bounded. When op cannot be recorded nothing is sent, done is not
// called and the error is returned.
func (g *Gateway) Dispatch(ctx context.Context, op SyncOperation, done func(SyncOperation)) error {
	if err := g.record(ctx, op); err != nil {
		return err
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		finished, _ := g.deliver(context.WithoutCancel(ctx), op)
		if done != nil {
			done(finished)
		}
	}()
	return nil
}

// Wait blocks until every dispatched operation has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) record(ctx context.Context, op SyncOperation) error {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := g.log.Append(recCtx, op); err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":     op.OrderID,
			"operation_id": op.ID,
			"kind":         op.Kind,
		}).Error("sync operation not recorded, not sending")
		return fmt.Errorf("%w: %v", ErrNotRecorded, err)
	}
	return nil
}

func (g *Gateway) deliver(ctx context.Context, op SyncOperation) (SyncOperation, error) {
	sendCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ack, err := g.sender.Send(sendCtx, op)
	if err != nil && sendCtx.Err() == context.DeadlineExceeded {
		if _, ok := err.(*TimeoutError); !ok {
			err = &TimeoutError{After: g.timeout, Err: err}
		}
	}
	done := op.complete(ack, err, g.now())

	entry := g.logger.WithFields(logrus.Fields{
		"order_id":     done.OrderID,
		"operation_id": done.ID,
		"kind":         done.Kind,
		"outcome":      done.Outcome,
	})
	if done.Failed() {
		entry.WithField("error_kind", done.ErrorKind).Warn(done.Error)
	} else {
		entry.Info("sync delivered")
	}

	// Recording uses its own context so a cancelled caller cannot drop the outcome.
	recCtx, recCancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer recCancel()
	if err := g.log.Complete(recCtx, done); err != nil {
		entry.WithError(err).Error("sync outcome not recorded, operation left pending")
		return done, fmt.Errorf("record outcome of %s: %w", done.ID, err)
	}
	return done, nil
}
