package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
)

const (
	defaultFailedLimit  = 500
	foreignKeyViolation = "23503"
)

// SyncLogStore defines the queries SyncLog needs.
// Satisfied by *Queries; narrow interface for testability.
type SyncLogStore interface {
	InsertSyncOperation(ctx context.Context, arg InsertSyncOperationParams) error
	InsertSyncOutcome(ctx context.Context, arg InsertSyncOutcomeParams) error
	GetSyncOperation(ctx context.Context, id uuid.UUID) (SyncOperation, error)
	ListSyncOperationsByOrder(ctx context.Context, orderID string) ([]SyncOperation, error)
	ListFailedSyncOperations(ctx context.Context, arg ListFailedSyncOperationsParams) ([]SyncOperation, error)
	ListUnfinishedSyncOperations(ctx context.Context, arg ListUnfinishedSyncOperationsParams) ([]SyncOperation, error)
}

// SyncLog stores the sync audit trail in PostgreSQL. It implements gateway.Log.
type SyncLog struct {
	store SyncLogStore
}

func NewSyncLog(store SyncLogStore) *SyncLog {
	return &SyncLog{store: store}
}

// Append records op as pending. Its outcome fields are ignored.
func (l *SyncLog) Append(ctx context.Context, op gateway.SyncOperation) error {
	if err := l.store.InsertSyncOperation(ctx, toInsertParams(op)); err != nil {
		return fmt.Errorf("insert sync operation %s: %w", op.ID, err)
	}
	return nil
}

// Complete records the outcome of an appended operation. The outcome table
// holds one row per operation, so a second outcome is rejected.
func (l *SyncLog) Complete(ctx context.Context, op gateway.SyncOperation) error {
	if op.Outcome == enum.SyncOutcomePending {
		return fmt.Errorf("sync operation %s has no outcome", op.ID)
	}
	if err := l.store.InsertSyncOutcome(ctx, toOutcomeParams(op)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return gateway.ErrOperationNotFound
		}
		return fmt.Errorf("insert outcome of sync operation %s: %w", op.ID, err)
	}
	return nil
}

func (l *SyncLog) Get(ctx context.Context, id uuid.UUID) (gateway.SyncOperation, error) {
	row, err := l.store.GetSyncOperation(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gateway.SyncOperation{}, gateway.ErrOperationNotFound
		}
		return gateway.SyncOperation{}, fmt.Errorf("get sync operation %s: %w", id, err)
	}
	return fromRow(row), nil
}

func (l *SyncLog) ListByOrder(ctx context.Context, orderID string) ([]gateway.SyncOperation, error) {
	rows, err := l.store.ListSyncOperationsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list sync operations for %s: %w", orderID, err)
	}
	return fromRows(rows), nil
}

func (l *SyncLog) ListFailed(ctx context.Context, orderID string, limit int) ([]gateway.SyncOperation, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	rows, err := l.store.ListFailedSyncOperations(ctx, ListFailedSyncOperationsParams{
		OrderID: pgtype.Text{String: orderID, Valid: orderID != ""},
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list failed sync operations: %w", err)
	}
	return fromRows(rows), nil
}

// ListUnfinished returns operations created before before that have no
// outcome and were not retried.
func (l *SyncLog) ListUnfinished(ctx context.Context, before time.Time, limit int) ([]gateway.SyncOperation, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	rows, err := l.store.ListUnfinishedSyncOperations(ctx, ListUnfinishedSyncOperationsParams{
		Before: pgtype.Timestamptz{Time: before, Valid: true},
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list unfinished sync operations: %w", err)
	}
	return fromRows(rows), nil
}

func toInsertParams(op gateway.SyncOperation) InsertSyncOperationParams {
	p := InsertSyncOperationParams{
		ID:             op.ID,
		OrderID:        op.OrderID,
		OrderNumber:    op.OrderNumber,
		Kind:           op.Kind,
		IdempotencyKey: op.IdempotencyKey,
		Payload:        op.Payload,
		CreatedAt:      pgtype.Timestamptz{Time: op.CreatedAt, Valid: true},
	}
	if op.Supersedes != nil {
		p.Supersedes = pgtype.UUID{Bytes: *op.Supersedes, Valid: true}
	}
	return p
}

func toOutcomeParams(op gateway.SyncOperation) InsertSyncOutcomeParams {
	p := InsertSyncOutcomeParams{
		OperationID: op.ID,
		Outcome:     op.Outcome,
		ErrorKind:   pgtype.Text{String: op.ErrorKind, Valid: op.ErrorKind != ""},
		Error:       pgtype.Text{String: op.Error, Valid: op.Error != ""},
		StatusCode:  pgtype.Int4{Int32: int32(op.StatusCode), Valid: op.StatusCode != 0},
	}
	if op.CompletedAt != nil {
		p.CompletedAt = pgtype.Timestamptz{Time: *op.CompletedAt, Valid: true}
	}
	return p
}

func fromRow(r SyncOperation) gateway.SyncOperation {
	op := gateway.SyncOperation{
		ID:             r.ID,
		OrderID:        r.OrderID,
		OrderNumber:    r.OrderNumber,
		Kind:           r.Kind,
		IdempotencyKey: r.IdempotencyKey,
		Payload:        r.Payload,
		CreatedAt:      r.CreatedAt.Time,
		Outcome:        r.Outcome,
		ErrorKind:      r.ErrorKind.String,
		Error:          r.Error.String,
		StatusCode:     int(r.StatusCode.Int32),
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.In(time.UTC)
		op.CompletedAt = &t
	}
	if r.Supersedes.Valid {
		id := uuid.UUID(r.Supersedes.Bytes)
		op.Supersedes = &id
	}
	return op
}

func fromRows(rows []SyncOperation) []gateway.SyncOperation {
	out := make([]gateway.SyncOperation, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out
}
