package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// Log is the append-only audit trail of sync operations. An operation is
// appended before it is sent; its outcome is recorded once, afterwards.
// Reads return the operation merged with its outcome, or pending without one.
type Log interface {
	Append(ctx context.Context, op SyncOperation) error
	Complete(ctx context.Context, op SyncOperation) error
	Get(ctx context.Context, id uuid.UUID) (SyncOperation, error)
	ListByOrder(ctx context.Context, orderID string) ([]SyncOperation, error)
	ListFailed(ctx context.Context, orderID string, limit int) ([]SyncOperation, error)
	ListUnfinished(ctx context.Context, before time.Time, limit int) ([]SyncOperation, error)
}

// MemoryLog is a process-local Log.
type MemoryLog struct {
	mu       sync.RWMutex
	ops      []SyncOperation
	outcomes map[uuid.UUID]SyncOperation
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{outcomes: make(map[uuid.UUID]SyncOperation)}
}

// Append records op as pending, whatever its Outcome field says.
func (l *MemoryLog) Append(ctx context.Context, op SyncOperation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.ops {
		if existing.ID == op.ID {
			return fmt.Errorf("sync operation %s already recorded", op.ID)
		}
	}
	op.Outcome = enum.SyncOutcomePending
	op.ErrorKind, op.Error, op.StatusCode, op.CompletedAt = "", "", 0, nil
	l.ops = append(l.ops, op)
	return nil
}

func (l *MemoryLog) Complete(ctx context.Context, op SyncOperation) error {
	if op.Outcome == enum.SyncOutcomePending {
		return fmt.Errorf("sync operation %s has no outcome", op.ID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.outcomes[op.ID]; ok {
		return fmt.Errorf("outcome of sync operation %s already recorded", op.ID)
	}
	for _, existing := range l.ops {
		if existing.ID == op.ID {
			l.outcomes[op.ID] = op
			return nil
		}
	}
	return ErrOperationNotFound
}

// merged returns op with its recorded outcome. Callers hold l.mu.
func (l *MemoryLog) merged(op SyncOperation) SyncOperation {
	if done, ok := l.outcomes[op.ID]; ok {
		op.Outcome = done.Outcome
		op.ErrorKind = done.ErrorKind
		op.Error = done.Error
		op.StatusCode = done.StatusCode
		op.CompletedAt = done.CompletedAt
	}
	return op
}

func (l *MemoryLog) Get(ctx context.Context, id uuid.UUID) (SyncOperation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, op := range l.ops {
		if op.ID == id {
			return l.merged(op), nil
		}
	}
	return SyncOperation{}, ErrOperationNotFound
}

// ListByOrder returns the order's operations oldest first.
func (l *MemoryLog) ListByOrder(ctx context.Context, orderID string) ([]SyncOperation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []SyncOperation{}
	for _, op := range l.ops {
		if op.OrderID == orderID {
			out = append(out, l.merged(op))
		}
	}
	return out, nil
}

// ListFailed returns failed operations that no later operation supersedes,
// newest first. An empty orderID matches every order.
func (l *MemoryLog) ListFailed(ctx context.Context, orderID string, limit int) ([]SyncOperation, error) {
	return l.list(limit, func(op SyncOperation) bool {
		return op.Outcome == enum.SyncOutcomeFailed && (orderID == "" || op.OrderID == orderID)
	})
}

// ListUnfinished returns operations created before before that never got an
// outcome and were not retried, newest first.
func (l *MemoryLog) ListUnfinished(ctx context.Context, before time.Time, limit int) ([]SyncOperation, error) {
	return l.list(limit, func(op SyncOperation) bool {
		return op.Outcome == enum.SyncOutcomePending && op.CreatedAt.Before(before)
	})
}

func (l *MemoryLog) list(limit int, match func(SyncOperation) bool) ([]SyncOperation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	superseded := make(map[uuid.UUID]bool)
	for _, op := range l.ops {
		if op.Supersedes != nil {
			superseded[*op.Supersedes] = true
		}
	}

	out := []SyncOperation{}
	for i := len(l.ops) - 1; i >= 0; i-- {
		op := l.merged(l.ops[i])
		if superseded[op.ID] || !match(op) {
			continue
		}
		out = append(out, op)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
