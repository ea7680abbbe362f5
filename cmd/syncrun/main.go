package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/nvt/karmad/internal/config"
	"github.com/nvt/karmad/internal/database"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/logger"
	"github.com/nvt/karmad/internal/services"
)

// syncrun fetches and scores one wallet's recent content without going
// through the queue. Useful for debugging provider or scorer issues.
func main() {
	var walletAddress string
	var timeout time.Duration
	flag.StringVar(&walletAddress, "wallet", "", "Wallet address to sync (required)")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Sync timeout")
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	if walletAddress == "" {
		fmt.Println("Usage: syncrun -wallet <wallet_address> [-timeout <duration>]")
		os.Exit(1)
	}

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
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ledgerSvc := ledger.NewService(db, appLogger)
	provider := services.NewContentClient(cfg.ContentAPIHost, cfg.ContentAPIKey)

	var scorer services.SentimentScorer
	if cfg.SentimentAPIKey != "" {
		scorer = services.NewLLMScorer(cfg.SentimentAPIKey, cfg.SentimentModel)
	} else {
		scorer = services.FallbackScorer{}
	}

	syncer := services.NewSyncer(db, ledgerSvc, provider, scorer, appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	result, err := syncer.SyncUser(ctx, walletAddress)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	fmt.Printf("Sync completed in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Wallet:        %s\n", walletAddress)
	fmt.Printf("  Fetched:       %d\n", result.Fetched)
	fmt.Printf("  Scored:        %d\n", result.Scored)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	fmt.Printf("  Failed:        %d\n", result.Failed)
	fmt.Printf("  Karma awarded: %g\n", result.KarmaAwarded)
}
