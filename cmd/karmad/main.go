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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvt/karmad/internal/chain"
	"github.com/nvt/karmad/internal/config"
	"github.com/nvt/karmad/internal/database"
	"github.com/nvt/karmad/internal/httpserver"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/logger"
	"github.com/nvt/karmad/internal/queue"
	"github.com/nvt/karmad/internal/services"
	"github.com/nvt/karmad/internal/staking"
	"github.com/nvt/karmad/internal/worker"
)

func main() {
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	queueClient, err := queue.NewClient(cfg.RedisURL, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer queueClient.Close()

	ledgerSvc := ledger.NewService(db, appLogger)
	stakingSvc := staking.NewService(db, appLogger)
	chainLedger := chain.NewSimulator(cfg.ChainRPCURL, appLogger)

	provider := services.NewContentClient(cfg.ContentAPIHost, cfg.ContentAPIKey)

	var scorer services.SentimentScorer
	if cfg.SentimentAPIKey != "" {
		scorer = services.NewLLMScorer(cfg.SentimentAPIKey, cfg.SentimentModel)
	} else {
		appLogger.Warn().Msg("No sentiment API key configured, using keyword fallback scorer")
		scorer = services.FallbackScorer{}
	}

	syncer := services.NewSyncer(db, ledgerSvc, provider, scorer, appLogger)

	manager := worker.NewManager(cfg, queueClient, syncer, appLogger)
	if err := manager.Start(); err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to start worker manager")
	}

	server := httpserver.NewServer(cfg, ledgerSvc, stakingSvc, chainLedger, queueClient, appLogger)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}

	go func() {
		appLogger.Info().Str("port", cfg.MetricsPort).Msg("Starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for a shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("Metrics server shutdown failed")
	}
	if err := manager.Stop(); err != nil {
		appLogger.Error().Err(err).Msg("Worker manager shutdown failed")
	}

	appLogger.Info().Msg("Shutdown complete")
}
