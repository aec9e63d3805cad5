/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rent ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the store (SQLite with migrations, or memory)
  4. Pick the invoice mail sender
  5. Create API handler, sweep scheduler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. The important ones:
  STORE_DRIVER, DB_PATH, LOG_LEVEL, LOG_FORMAT, INVOICE_DUE_DAYS,
  SWEEP_ENABLED, SWEEP_SCHEDULE, MAIL_PROVIDER, MAIL_FROM

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop scheduling sweeps, wait for a running one
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/api"
	"github.com/prosuite/rent-ledger/billing"
	memstore "github.com/prosuite/rent-ledger/billing/store"
	"github.com/prosuite/rent-ledger/config"
	"github.com/prosuite/rent-ledger/logging"
	"github.com/prosuite/rent-ledger/notify"
	"github.com/prosuite/rent-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rent-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Store.Path, "SQLite database path")
	flag.Parse()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	var store billing.Store
	switch cfg.Store.Driver {
	case "memory":
		store = memstore.NewMemory()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := sqlite.New(*dbPath, sqlite.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()
		store = db
		logger.Info("database ready", zap.String("path", *dbPath))
	}

	metrics := api.NewMetrics(cfg.Metrics.Namespace)

	handler := api.NewHandler(api.HandlerConfig{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		InvoiceOptions: []billing.InvoiceOption{
			billing.WithDueDays(cfg.Billing.InvoiceDueDays),
			billing.WithDelivery(newSender(cfg.Mail, logger), notify.NewTextRenderer()),
		},
	})

	if cfg.Sweep.Enabled {
		scheduler, err := api.NewSweepScheduler(handler.Invoices, cfg.Sweep.Schedule, logger, metrics)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		handler.Scheduler = scheduler
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CORSOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", *port), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if handler.Scheduler != nil {
		handler.Scheduler.Stop(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newSender picks how invoices leave the building.
func newSender(cfg config.MailConfig, logger *zap.Logger) billing.Sender {
	switch cfg.Provider {
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			FromName: cfg.FromName,
		}, logger)
	case "sendgrid":
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.From, cfg.FromName, cfg.SendGridSandbox, logger)
	default:
		return notify.NewLogSender(logger)
	}
}
