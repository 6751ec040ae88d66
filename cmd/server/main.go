package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/gateway"
	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/router"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/kiwari-pos/fulfillment/internal/upstream"
	"github.com/kiwari-pos/fulfillment/internal/ws"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := cfg.Logger()
	if err := cfg.ValidateServer(); err != nil {
		logger.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	defer pool.Close()

	books := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamToken, cfg.UpstreamTimeout)
	sender := gateway.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	syncLog := database.NewSyncLog(database.New(pool))
	gw := gateway.New(sender, syncLog, cfg.WebhookTimeout, logger.WithField("component", "gateway"))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(logger.WithField("component", "ws"))
	go hub.Run(hubCtx)

	orders := service.NewOrderService(books, gw, syncLog, invoice.NewLinker(books), hub,
		cfg.WebhookSource, logger.WithField("component", "orders"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, orders, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}

	// Outstanding syncs are bounded by the webhook timeout; let them record.
	gw.Wait()
	logger.Info("sync operations drained")
}
