package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "syncctl",
		Usage: "inspect and replay order sync operations",
		Commands: []*cli.Command{
			migrateCommand(),
			failedCommand(),
			retryCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("syncctl")
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "apply (up) or revert the latest (down) schema migration",
		ArgsUsage: "up|down",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "file://migrations", Usage: "migration source URL"},
		},
		Action: func(c *cli.Context) error {
			direction := c.Args().First()
			if direction != database.MigrateUp && direction != database.MigrateDown {
				return cli.Exit("usage: syncctl migrate up|down", 2)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg.DatabaseURL, c.String("dir"), direction); err != nil {
				return err
			}
			cfg.Logger().WithField("direction", direction).Info("migrations applied")
			return nil
		},
	}
}

func failedCommand() *cli.Command {
	return &cli.Command{
		Name:  "failed",
		Usage: "list failed or interrupted sync operations that have not been retried",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "order", Usage: "only this order id"},
			&cli.IntFlag{Name: "limit", Value: 50},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.NewPool(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			syncLog := database.NewSyncLog(database.New(pool))

			ops, err := retryable(c.Context, syncLog, c.String("order"), c.Int("limit"), time.Now(), cfg.WebhookTimeout)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tORDER\tKIND\tOUTCOME\tERROR_KIND\tCREATED\tERROR")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					op.ID, op.OrderNumber, op.Kind, op.Outcome, op.ErrorKind, op.CreatedAt.Format(time.RFC3339), op.Error)
			}
			return w.Flush()
		},
	}
}

// retryable lists failed operations followed by interrupted ones: pending
// operations old enough that no send for them can still be running.
func retryable(ctx context.Context, syncLog gateway.Log, orderID string, limit int, now time.Time, sendTimeout time.Duration) ([]gateway.SyncOperation, error) {
	ops, err := syncLog.ListFailed(ctx, orderID, limit)
	if err != nil {
		return nil, err
	}
	unfinished, err := syncLog.ListUnfinished(ctx, now.Add(-sendTimeout), limit)
	if err != nil {
		return nil, err
	}
	for _, op := range unfinished {
		if limit > 0 && len(ops) >= limit {
			break
		}
		if (orderID == "" || op.OrderID == orderID) && op.Interrupted(now, sendTimeout) {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func retryCommand() *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "re-send a failed or interrupted operation's payload and record the result",
		ArgsUsage: "<operation-id>",
		Action: func(c *cli.Context) error {
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return cli.Exit("usage: syncctl retry <operation-id>", 2)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateWebhook(); err != nil {
				return err
			}
			logger := cfg.Logger()

			pool, err := database.NewPool(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			syncLog := database.NewSyncLog(database.New(pool))

			failed, err := syncLog.Get(c.Context, id)
			if err != nil {
				return err
			}
			if failed.Pending() && !failed.Interrupted(time.Now(), cfg.WebhookTimeout) {
				return cli.Exit(fmt.Sprintf("operation %s may still be in flight", failed.ID), 1)
			}
			if err := ensureNotRetried(c.Context, syncLog, failed); err != nil {
				return err
			}
			retry, err := gateway.Retry(failed, time.Now())
			if err != nil {
				return err
			}

			sender := gateway.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
			gw := gateway.New(sender, syncLog, cfg.WebhookTimeout, logger)
			done, err := gw.SendNow(c.Context, retry)
			if err != nil {
				return err
			}
			if done.Failed() {
				return cli.Exit(fmt.Sprintf("retry %s failed: %s", done.ID, done.Error), 1)
			}
			fmt.Fprintf(c.App.Writer, "retry %s delivered (status %d)\n", done.ID, done.StatusCode)
			return nil
		},
	}
}

// ensureNotRetried rejects an operation that already has a successor.
func ensureNotRetried(ctx context.Context, syncLog gateway.Log, failed gateway.SyncOperation) error {
	history, err := syncLog.ListByOrder(ctx, failed.OrderID)
	if err != nil {
		return err
	}
	for _, h := range history {
		if h.Supersedes != nil && *h.Supersedes == failed.ID {
			return errors.Errorf("operation %s was already retried by %s", failed.ID, h.ID)
		}
	}
	return nil
}
