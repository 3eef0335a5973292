package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

// scoringLockKey is the advisory lock key enforcing the single-writer
// discipline for scoring passes.
const scoringLockKey int64 = 0x73636f7265

// ErrRunInProgress is returned when another scoring pass holds the lock.
var ErrRunInProgress = fmt.Errorf("another scoring run is in progress")

// Engine runs scoring passes: select wallets, aggregate signals, compute
// and persist scores, and report the changes for notification dispatch.
type Engine struct {
	db         *storage.PostgresDB
	wallets    *storage.WalletRepository
	scores     *storage.ScoreRepository
	aggregator *Aggregator
}

// NewEngine creates a new scoring engine
func NewEngine(db *storage.PostgresDB, wallets *storage.WalletRepository, scores *storage.ScoreRepository, aggregator *Aggregator) *Engine {
	return &Engine{db: db, wallets: wallets, scores: scores, aggregator: aggregator}
}

// ScoreChange records one wallet's score movement in a pass. Old is nil
// for a wallet's first ever score.
type ScoreChange struct {
	Address string
	Old     *int
	New     int
}

// RunSummary reports one completed scoring pass.
type RunSummary struct {
	WalletsScored    int
	WalletsFailed    int
	Duration         time.Duration
	TierDistribution map[types.TrustTier]int64
	Top              []storage.ScoreRow
	Bottom           []storage.ScoreRow
}

// Run executes one scoring pass. Incremental mode (the default) scores
// only wallets marked needs_rescore; full rescoring covers every wallet.
// An advisory lock keeps concurrent passes out; a held lock returns
// ErrRunInProgress.
func (e *Engine) Run(ctx context.Context, full bool) (*RunSummary, []ScoreChange, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	lock, err := e.db.TryAdvisoryLock(ctx, scoringLockKey)
	if err != nil {
		return nil, nil, err
	}
	if lock == nil {
		return nil, nil, ErrRunInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("failed to release scoring lock")
		}
	}()

	wallets, err := e.wallets.ListForScoring(ctx, full)
	if err != nil {
		return nil, nil, err
	}
	if len(wallets) == 0 {
		logger.Info("no wallets need scoring")
		summary := &RunSummary{Duration: time.Since(start)}
		if err := e.fillReport(ctx, summary); err != nil {
			return nil, nil, err
		}
		return summary, nil, nil
	}

	signals, err := e.aggregator.Collect(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	summary := &RunSummary{}
	var changes []ScoreChange

	for _, wallet := range wallets {
		result := Compute(signals.BundleFor(wallet), now)
		role := signals.RoleFor(wallet.Address)

		if err := e.persist(ctx, wallet.Address, result, role, now); err != nil {
			logger.WithError(err).WithField("wallet", wallet.Address).Error("failed to persist score, skipping")
			summary.WalletsFailed++
			continue
		}

		summary.WalletsScored++
		changes = append(changes, ScoreChange{
			Address: wallet.Address,
			Old:     wallet.TrustScore,
			New:     result.Score,
		})
	}

	summary.Duration = time.Since(start)
	if err := e.fillReport(ctx, summary); err != nil {
		return nil, nil, err
	}

	logger.WithFields(map[string]interface{}{
		"scored":   summary.WalletsScored,
		"failed":   summary.WalletsFailed,
		"duration": summary.Duration.String(),
	}).Info("scoring pass complete")
	return summary, changes, nil
}

// persist writes the snapshot and the wallet update in one transaction,
// snapshot first, so history never misses a persisted score.
func (e *Engine) persist(ctx context.Context, address string, result *Result, role *types.WalletRole, computedAt time.Time) error {
	tx, err := e.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := e.scores.InsertSnapshot(ctx, tx, address, result.Score, result.Breakdown, computedAt); err != nil {
		return err
	}
	if err := e.wallets.ApplyScore(ctx, tx, address, result.Score, result.Breakdown, role, computedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (e *Engine) fillReport(ctx context.Context, summary *RunSummary) error {
	dist, err := e.scores.TierDistribution(ctx)
	if err != nil {
		return err
	}
	top, err := e.scores.TopScores(ctx, 10)
	if err != nil {
		return err
	}
	bottom, err := e.scores.BottomScores(ctx, 5)
	if err != nil {
		return err
	}
	summary.TierDistribution = dist
	summary.Top = top
	summary.Bottom = bottom
	return nil
}
