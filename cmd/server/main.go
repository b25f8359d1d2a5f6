// Package main provides the API server entry point for the tax ledger.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tax-ledger/internal/api"
	"github.com/tax-ledger/internal/app"
	"github.com/tax-ledger/internal/config"
	"github.com/tax-ledger/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ledger, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer ledger.Close()

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	services := api.Services{
		Tax:         ledger.Tax,
		Admin:       ledger.Admin,
		Settlement:  ledger.Settlement,
		Broadcaster: ledger.Broadcaster,
	}
	if ledger.Checker != nil {
		services.Checker = ledger.Checker
	}

	server := api.NewServer(serverConfig, services, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initLogging(cfg *config.Config) *logging.Logger {
	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		log.Printf("%v, falling back to info", err)
	}
	format, err := logging.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		log.Printf("%v, falling back to json", err)
	}

	logger := logging.InitGlobalLogger(level, format)
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")
	return logger
}
