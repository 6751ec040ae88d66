package database

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type SyncOperation struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        string             `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	Kind           string             `json:"kind"`
	IdempotencyKey uuid.UUID          `json:"idempotency_key"`
	Payload        []byte             `json:"payload"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	Outcome        string             `json:"outcome"`
	ErrorKind      pgtype.Text        `json:"error_kind"`
	Error          pgtype.Text        `json:"error"`
	StatusCode     pgtype.Int4        `json:"status_code"`
	CompletedAt    pgtype.Timestamptz `json:"completed_at"`
	Supersedes     pgtype.UUID        `json:"supersedes"`
	RecordedAt     pgtype.Timestamptz `json:"recorded_at"`
}
