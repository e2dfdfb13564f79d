/*
main.go - Application entry point

PURPOSE:
  Starts the debt ledger HTTP server that a chat bot talks to.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, then environment)
  2. Set up logging
  3. Open the per-chat SQLite store
  4. Build the ledger facade with metrics
  5. Configure the HTTP router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (-shutdown-timeout)
  3. Close every chat database
  4. Exit

EXAMPLES:
  # Per-chat files under ./data
  ./server -db=./data

  # Everything in memory
  ./server -db=":memory:" -log-level=debug

SEE ALSO:
  - config/config.go: Flags and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/debt-ledger/api"
	"github.com/warp/debt-ledger/config"
	"github.com/warp/debt-ledger/ledger"
	"github.com/warp/debt-ledger/logging"
	"github.com/warp/debt-ledger/metrics"
	"github.com/warp/debt-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logging.Setup("info").Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	logger := logging.Setup(cfg.LogLevel)

	// Initialize store
	store, err := sqlite.New(cfg.DataDir, sqlite.WithMaxOpenChats(cfg.MaxOpenChats))
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Storage initialized", "dir", cfg.DataDir, "max_open_chats", cfg.MaxOpenChats)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	// Ledger + HTTP
	l := ledger.NewLedger(store, ledger.WithLogger(logger), ledger.WithObserver(recorder))
	handler := api.NewHandler(l, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
