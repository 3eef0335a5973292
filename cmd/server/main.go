// Package main provides the read API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trust-scanner/internal/api"
	"github.com/trust-scanner/internal/config"
	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	server := api.NewServer(&api.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}, db, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
			os.Exit(1)
		}
	}
}
