// Package main provides the scoring entry point: aggregate signals, score
// the selected wallets, and dispatch webhook notifications for the
// resulting changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trust-scanner/internal/config"
	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/scoring"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
	"github.com/trust-scanner/internal/webhook"
)

func main() {
	full := flag.Bool("full", false, "Rescore every wallet instead of only dirty ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(logging.WithLogger(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *full); err != nil {
		logger.WithError(err).Error("scoring run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, full bool) error {
	start := time.Now()

	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	wallets := storage.NewWalletRepository(db)
	transactions := storage.NewTransactionRepository(db)
	feedback := storage.NewFeedbackRepository(db)
	scores := storage.NewScoreRepository(db)
	webhooks := storage.NewWebhookRepository(db)

	engine := scoring.NewEngine(db, wallets, scores, scoring.NewAggregator(transactions, feedback))

	summary, changes, err := engine.Run(ctx, full)
	if err != nil {
		return err
	}

	// The dispatcher runs only after a completed scoring pass.
	dispatcher, err := webhook.NewDispatcher(&webhook.Config{
		Store:       webhooks,
		Timeout:     cfg.Webhook.Timeout,
		MaxFailures: cfg.Webhook.MaxFailures,
	})
	if err != nil {
		return err
	}
	dispatch, err := dispatcher.Dispatch(ctx, changes)
	if err != nil {
		return err
	}

	size, err := db.Size(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to read database size")
	}

	logger.WithFields(map[string]interface{}{
		"elapsed":     time.Since(start).String(),
		"scored":      summary.WalletsScored,
		"failed":      summary.WalletsFailed,
		"delivered":   dispatch.Delivered,
		"dbSizeBytes": size,
	}).Info("scoring run complete")

	printReport(summary)
	return nil
}

// printReport writes the tier distribution and the top/bottom sanity
// listing to stdout.
func printReport(summary *scoring.RunSummary) {
	fmt.Println("\nTier distribution:")
	for _, tier := range []types.TrustTier{types.TrustHigh, types.TrustMedium, types.TrustLow, types.TrustMinimal} {
		fmt.Printf("  %-8s %d\n", tier, summary.TierDistribution[tier])
	}

	fmt.Println("\nTop 10:")
	for _, row := range summary.Top {
		fmt.Printf("  %s  %3d\n", row.Address, row.Score)
	}

	fmt.Println("\nBottom 5:")
	for _, row := range summary.Bottom {
		fmt.Printf("  %s  %3d\n", row.Address, row.Score)
	}
}
