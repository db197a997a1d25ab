package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"community-orchestrator/api/rest/handlers"
	"community-orchestrator/api/rest/routes"
	"community-orchestrator/config"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/orchestrator"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := orchestrator.Bootstrap(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	defer app.Close()

	// Initialize run monitor
	go app.Monitor.Start(ctx)

	deps := routes.Deps{Service: app.Service, Metrics: app.Metrics}
	if app.Artifacts != nil {
		deps.Artifacts = app.Artifacts
	}
	if app.Summaries != nil {
		deps.Summaries = handlers.SummaryReader(app.Summaries)
	}

	// Start server
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           routes.NewHandler(os.Stdout, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "workers", cfg.Workers)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("server exited")
}
