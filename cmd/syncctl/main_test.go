package main

import (
	"context"
	"testing"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func failedOp(t *testing.T, log gateway.Log) gateway.SyncOperation {
	t.Helper()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	o := &order.Order{ID: "so-1", ExternalNumber: "SO-00001", Status: enum.OrderStatusConfirmed}
	op, err := gateway.NewOperation(o.ID, o.ExternalNumber, enum.SyncKindResend,
		gateway.BuildPayload(o, enum.SyncKindResend, nil, "backoffice", now), now)
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), op))
	op.Outcome = enum.SyncOutcomeFailed
	op.ErrorKind = enum.SyncErrorTimeout
	op.CompletedAt = &now
	require.NoError(t, log.Complete(context.Background(), op))
	return op
}

func TestEnsureNotRetried(t *testing.T) {
	ctx := context.Background()
	log := gateway.NewMemoryLog()
	failed := failedOp(t, log)

	require.NoError(t, ensureNotRetried(ctx, log, failed))

	retry, err := gateway.Retry(failed, time.Now())
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, retry))

	assert.ErrorContains(t, ensureNotRetried(ctx, log, failed), "already retried")
}

func TestRetryable_IncludesInterrupted(t *testing.T) {
	ctx := context.Background()
	log := gateway.NewMemoryLog()
	failed := failedOp(t, log)

	created := failed.CreatedAt
	o := &order.Order{ID: "so-2", ExternalNumber: "SO-00002", Status: enum.OrderStatusConfirmed}
	stuck, err := gateway.NewOperation(o.ID, o.ExternalNumber, enum.SyncKindUpdate,
		gateway.BuildPayload(o, enum.SyncKindUpdate, nil, "backoffice", created), created)
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, stuck))

	// Still within the send window: not listed.
	ops, err := retryable(ctx, log, "", 0, created.Add(time.Second), 10*time.Second)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, failed.ID, ops[0].ID)

	ops, err = retryable(ctx, log, "", 0, created.Add(time.Hour), 10*time.Second)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, stuck.ID, ops[1].ID)
	assert.Equal(t, enum.SyncOutcomePending, ops[1].Outcome)

	ops, err = retryable(ctx, log, "so-1", 0, created.Add(time.Hour), 10*time.Second)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestUsageErrors(t *testing.T) {
	app := &cli.App{
		Commands:       []*cli.Command{migrateCommand(), retryCommand()},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	for _, args := range [][]string{
		{"syncctl", "migrate", "sideways"},
		{"syncctl", "retry", "not-a-uuid"},
	} {
		err := app.Run(args)
		var exit cli.ExitCoder
		require.ErrorAs(t, err, &exit, "%v", args)
		assert.Equal(t, 2, exit.ExitCode())
	}
}
