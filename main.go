package main

import (
	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/handlers"
	"bluegreen-deployment/internal/ledger"
	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/newrelic"
	"bluegreen-deployment/internal/orchestrator"
	"bluegreen-deployment/internal/server"
)

func main() {
	// Initialize global logger
	appLogger := logger.Initialize()
	appLogger.Info("Blue-Green Deployment Service starting")

	// Load configuration
	cfg := config.Load()

	// Initialize New Relic monitoring
	if _, err := newrelic.Initialize(cfg); err != nil {
		appLogger.WithError(err).Warn("Continuing without New Relic monitoring")
	}

	// Open the deployment ledger
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		appLogger.Fatal("Failed to open ledger: ", err)
	}
	defer led.Close()

	// Wire the orchestrator and start the server
	orch, registry := orchestrator.FromConfig(cfg, led)
	handler := handlers.NewHandler(cfg, orch, led, registry)

	srv := server.NewServer(cfg, handler)
	if err := srv.Start(); err != nil {
		appLogger.Fatal("Server failed to start: ", err)
	}
}
