// Package main provides the indexer entry point: one resumable scan pass
// over the configured chains' identity, feedback, and payment sources.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trust-scanner/internal/budget"
	"github.com/trust-scanner/internal/config"
	"github.com/trust-scanner/internal/gateway"
	"github.com/trust-scanner/internal/indexer"
	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

func main() {
	var (
		chainFlag = flag.String("chain", "all", "Chain to scan: ethereum, base, arbitrum, or all")
		days      = flag.Int("days", 7, "Default scan window in days when no cursor exists")
		limit     = flag.Uint64("limit", 0, "Cap on blocks scanned per scanner this run (0 = no cap)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	chains, err := selectChains(*chainFlag)
	if err != nil {
		logger.WithError(err).Error("invalid --chain")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(logging.WithLogger(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, chains, *days, *limit); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted, cursors remain at the last committed batch")
			os.Exit(1)
		}
		logger.WithError(err).Error("indexer run failed")
		os.Exit(1)
	}
}

func selectChains(flag string) ([]types.ChainID, error) {
	if flag == "all" {
		return types.AllChains, nil
	}
	chain := types.ChainID(flag)
	for _, known := range types.AllChains {
		if chain == known {
			return []types.ChainID{chain}, nil
		}
	}
	return nil, fmt.Errorf("unknown chain %q", flag)
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, chains []types.ChainID, days int, limit uint64) error {
	start := time.Now()

	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	wallets := storage.NewWalletRepository(db)
	transactions := storage.NewTransactionRepository(db)
	feedback := storage.NewFeedbackRepository(db)
	cursors := storage.NewIndexerStateRepository(db)

	governor, err := budget.NewGovernor(&budget.GovernorConfig{
		MonthlyCU: cfg.Budget.MonthlyCU,
		Costs:     budget.NewCostRegistry(&budget.CostRegistryConfig{DefaultCost: cfg.Budget.DefaultMethodCost}),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	totalEvents := 0
	totalBlocks := uint64(0)
	budgetStop := false

	for _, chain := range chains {
		summaries, err := scanChain(ctx, cfg, chain, governor, cursors, wallets, transactions, feedback, days, limit)
		for _, s := range summaries {
			totalEvents += s.EventsFound
			totalBlocks += s.BlocksScanned
			if s.StoppedByBudget {
				budgetStop = true
			}
		}
		if err != nil {
			return err
		}
		if budgetStop {
			break
		}
	}

	usage := governor.Snapshot()
	size, err := db.Size(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to read database size")
	}

	logger.WithFields(map[string]interface{}{
		"elapsed":       time.Since(start).String(),
		"events":        totalEvents,
		"blocks":        totalBlocks,
		"cuUsed":        usage.TotalCU,
		"cuBudget":      usage.MonthlyCU,
		"cuUtilization": fmt.Sprintf("%.1f%%", usage.Utilization*100),
		"budgetStop":    budgetStop,
		"dbSizeBytes":   size,
	}).Info("indexer run complete")
	return nil
}

// scanChain runs the chain's configured scanners in sequence. A budget
// stop ends the pass cleanly; any other scanner error is unrecoverable.
func scanChain(ctx context.Context, cfg *config.Config, chain types.ChainID, governor *budget.Governor, cursors *storage.IndexerStateRepository, wallets *storage.WalletRepository, transactions *storage.TransactionRepository, feedback *storage.FeedbackRepository, days int, limit uint64) ([]*indexer.Summary, error) {
	logger := logging.FromContext(ctx).WithField("chain", string(chain))
	cc := cfg.Chains[chain]

	url, err := cfg.RPCURL(chain)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(&gateway.Config{
		Chain:       chain,
		RPCURL:      url,
		Governor:    governor,
		Pacing:      cc.Pacing,
		CallTimeout: cfg.RPC.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	// The default window for cursor-less scanners is --days translated to
	// blocks with the chain's average block time. An explicit genesis from
	// the environment wins.
	head, err := gw.Head(ctx)
	if err != nil {
		return nil, err
	}
	windowBlocks := uint64(time.Duration(days) * 24 * time.Hour / cc.AvgBlockTime)
	windowStart := uint64(0)
	if head > windowBlocks {
		windowStart = head - windowBlocks
	}

	type scanJob struct {
		id      string
		handler indexer.Handler
		genesis uint64
	}
	var jobs []scanJob

	if cc.IdentityRegistry != "" {
		jobs = append(jobs, scanJob{
			id:      indexer.IdentityScannerID(chain),
			handler: indexer.NewIdentityHandler(chain, common.HexToAddress(cc.IdentityRegistry), wallets),
			genesis: orDefault(cc.IdentityGenesis, windowStart),
		})
	} else {
		logger.Warn("no identity registry configured, skipping identity scan")
	}

	if cc.ReputationRegistry != "" {
		jobs = append(jobs, scanJob{
			id:      indexer.FeedbackScannerID(chain),
			handler: indexer.NewFeedbackHandler(chain, common.HexToAddress(cc.ReputationRegistry), feedback),
			genesis: orDefault(cc.FeedbackGenesis, windowStart),
		})
	} else {
		logger.Warn("no reputation registry configured, skipping feedback scan")
	}

	jobs = append(jobs, scanJob{
		id:      indexer.PaymentScannerID(chain),
		handler: indexer.NewPaymentHandler(chain, common.HexToAddress(cc.USDCAddress), cc.Facilitators, gw, wallets, transactions),
		genesis: orDefault(cc.PaymentGenesis, windowStart),
	})

	var summaries []*indexer.Summary
	for _, job := range jobs {
		scanner, err := indexer.NewScanner(&indexer.ScannerConfig{
			ID:        job.id,
			Source:    gw,
			Cursors:   cursors,
			Stop:      governor,
			Handler:   job.handler,
			Genesis:   job.genesis,
			BatchSize: cfg.Indexer.BatchSize,
			Limit:     limit,
		})
		if err != nil {
			return summaries, err
		}

		summary, err := scanner.Run(ctx)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}
		if summary.StoppedByBudget {
			break
		}
	}
	return summaries, nil
}

func orDefault(genesis, fallback uint64) uint64 {
	if genesis > 0 {
		return genesis
	}
	return fallback
}
