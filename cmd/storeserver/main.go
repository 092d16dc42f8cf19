package main

import (
	"context"
	"errors"
	"fmt"
	"livechat/internal"
	"livechat/storage"
	"livechat/transport"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run keeps every deferred cleanup on the exit path, main only reports the error.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	bdb, err := storage.OpenBadger(config.BadgerFilepath, false, log)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = bdb.Close()
	}()
	db, err := storage.NewDatabase(bdb, log, storage.WithQueueSize(config.SubscriptionBuffer))
	if err != nil {
		return fmt.Errorf("database loading failed: %w", err)
	}

	// 3. Websocket server
	server := transport.NewServer(db, log,
		transport.Credentials{ProjectID: config.ProjectID, APIKey: config.APIKey},
		transport.WithHeartbeat(config.HeartbeatInterval, config.HeartbeatTimeout),
		transport.WithWriteTimeout(config.WriteTimeout),
		transport.WithRestartInterval(config.RestartInterval),
	)
	mux := http.NewServeMux()
	mux.Handle("/", server)
	if config.InspectEndpoint != "" {
		mux.Handle(config.InspectEndpoint, internal.NewInspectHandler(db.Entries, func() map[string]any {
			lsm, vlog := db.Size()
			return map[string]any{"peers": server.Peers(), "lsm_bytes": lsm, "vlog_bytes": vlog}
		}, "presence/"))
		log.Info("Store inspection enabled", "endpoint", config.InspectEndpoint)
	}
	httpServer := &http.Server{Addr: config.Address(), Handler: mux}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting store server", "address", config.Address(), "project", config.ProjectID, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("store server error: %w", err)
		}
	}()

	// 5. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 6. Final Cleanup, clients are disconnected so their records are removed
	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
