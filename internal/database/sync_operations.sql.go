package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Operations are read merged with their outcome; a missing outcome reads as pending.
const selectSyncOperations = `SELECT s.id, s.order_id, s.order_number, s.kind, s.idempotency_key, s.payload, s.created_at,
    COALESCE(o.outcome, 'pending'), o.error_kind, o.error, o.status_code, o.completed_at, s.supersedes, s.recorded_at
FROM sync_operations s
LEFT JOIN sync_operation_outcomes o ON o.operation_id = s.id`

func scanSyncOperation(row interface{ Scan(...any) error }) (SyncOperation, error) {
	var i SyncOperation
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.OrderNumber,
		&i.Kind,
		&i.IdempotencyKey,
		&i.Payload,
		&i.CreatedAt,
		&i.Outcome,
		&i.ErrorKind,
		&i.Error,
		&i.StatusCode,
		&i.CompletedAt,
		&i.Supersedes,
		&i.RecordedAt,
	)
	return i, err
}

func scanSyncOperations(rows pgx.Rows) ([]SyncOperation, error) {
	defer rows.Close()
	items := []SyncOperation{}
	for rows.Next() {
		i, err := scanSyncOperation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertSyncOperation = `-- name: InsertSyncOperation :exec
INSERT INTO sync_operations (
    id, order_id, order_number, kind, idempotency_key, payload, created_at, supersedes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type InsertSyncOperationParams struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        string             `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	Kind           string             `json:"kind"`
	IdempotencyKey uuid.UUID          `json:"idempotency_key"`
	Payload        []byte             `json:"payload"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	Supersedes     pgtype.UUID        `json:"supersedes"`
}

func (q *Queries) InsertSyncOperation(ctx context.Context, arg InsertSyncOperationParams) error {
	_, err := q.db.Exec(ctx, insertSyncOperation,
		arg.ID,
		arg.OrderID,
		arg.OrderNumber,
		arg.Kind,
		arg.IdempotencyKey,
		arg.Payload,
		arg.CreatedAt,
		arg.Supersedes,
	)
	return err
}

const insertSyncOutcome = `-- name: InsertSyncOutcome :exec
INSERT INTO sync_operation_outcomes (
    operation_id, outcome, error_kind, error, status_code, completed_at
) VALUES ($1, $2, $3, $4, $5, $6)`

type InsertSyncOutcomeParams struct {
	OperationID uuid.UUID          `json:"operation_id"`
	Outcome     string             `json:"outcome"`
	ErrorKind   pgtype.Text        `json:"error_kind"`
	Error       pgtype.Text        `json:"error"`
	StatusCode  pgtype.Int4        `json:"status_code"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
}

func (q *Queries) InsertSyncOutcome(ctx context.Context, arg InsertSyncOutcomeParams) error {
	_, err := q.db.Exec(ctx, insertSyncOutcome,
		arg.OperationID,
		arg.Outcome,
		arg.ErrorKind,
		arg.Error,
		arg.StatusCode,
		arg.CompletedAt,
	)
	return err
}

const getSyncOperation = `-- name: GetSyncOperation :one
` + selectSyncOperations + `
WHERE s.id = $1`

func (q *Queries) GetSyncOperation(ctx context.Context, id uuid.UUID) (SyncOperation, error) {
	row := q.db.QueryRow(ctx, getSyncOperation, id)
	return scanSyncOperation(row)
}

const listSyncOperationsByOrder = `-- name: ListSyncOperationsByOrder :many
` + selectSyncOperations + `
WHERE s.order_id = $1
ORDER BY s.created_at, s.recorded_at`

func (q *Queries) ListSyncOperationsByOrder(ctx context.Context, orderID string) ([]SyncOperation, error) {
	rows, err := q.db.Query(ctx, listSyncOperationsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return scanSyncOperations(rows)
}

const listFailedSyncOperations = `-- name: ListFailedSyncOperations :many
` + selectSyncOperations + `
WHERE o.outcome = 'failed'
  AND ($1::text IS NULL OR s.order_id = $1)
  AND NOT EXISTS (SELECT 1 FROM sync_operations r WHERE r.supersedes = s.id)
ORDER BY s.created_at DESC, s.recorded_at DESC
LIMIT $2`

type ListFailedSyncOperationsParams struct {
	OrderID pgtype.Text `json:"order_id"`
	Limit   int32       `json:"limit"`
}

func (q *Queries) ListFailedSyncOperations(ctx context.Context, arg ListFailedSyncOperationsParams) ([]SyncOperation, error) {
	rows, err := q.db.Query(ctx, listFailedSyncOperations, arg.OrderID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanSyncOperations(rows)
}

const listUnfinishedSyncOperations = `-- name: ListUnfinishedSyncOperations :many
` + selectSyncOperations + `
WHERE o.operation_id IS NULL
  AND s.created_at < $1
  AND NOT EXISTS (SELECT 1 FROM sync_operations r WHERE r.supersedes = s.id)
ORDER BY s.created_at DESC, s.recorded_at DESC
LIMIT $2`

type ListUnfinishedSyncOperationsParams struct {
	Before pgtype.Timestamptz `json:"before"`
	Limit  int32              `json:"limit"`
}

func (q *Queries) ListUnfinishedSyncOperations(ctx context.Context, arg ListUnfinishedSyncOperationsParams) ([]SyncOperation, error) {
	rows, err := q.db.Query(ctx, listUnfinishedSyncOperations, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanSyncOperations(rows)
}
