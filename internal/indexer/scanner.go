// Package indexer implements the resumable per-(chain, event-source)
// scanners that harvest identity, feedback, and payment events into the
// event store.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
)

// DefaultBatchSize is the hard per-call eth_getLogs window imposed by the
// free-tier RPC provider.
const DefaultBatchSize = 10

// ChainSource is the subset of the chain gateway a scanner needs.
type ChainSource interface {
	Head(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error)
	Pace(ctx context.Context) error
}

// CursorStore persists scanner cursors.
type CursorStore interface {
	Get(ctx context.Context, scannerID string) (*models.IndexerState, error)
	Upsert(ctx context.Context, scannerID string, lastBlock uint64) error
}

// StopSignal is the budget governor's terminal flag, polled before every
// batch.
type StopSignal interface {
	ShouldStop() bool
}

// WalletStore receives wallet observations from handlers.
type WalletStore interface {
	Observe(ctx context.Context, obs *storage.WalletObservation) error
}

// TransactionStore receives decoded payment rows from handlers.
type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) (bool, error)
}

// FeedbackStore receives decoded feedback rows from handlers.
type FeedbackStore interface {
	Insert(ctx context.Context, fb *models.Feedback) (bool, error)
}

// Handler decodes and persists the logs of one event source. Per-row
// failures are logged and skipped inside HandleLogs; a returned error is
// batch-fatal and aborts the run with the cursor at the last committed
// batch.
type Handler interface {
	// Query builds the log filter for one block window.
	Query(from, to uint64) ethereum.FilterQuery

	// HandleLogs persists a batch of logs and returns the number of
	// events successfully recorded.
	HandleLogs(ctx context.Context, logs []ethtypes.Log) (int, error)
}

// Scanner drives the batch loop for one (chain, event-source) pair.
type Scanner struct {
	id        string
	source    ChainSource
	cursors   CursorStore
	stop      StopSignal
	handler   Handler
	genesis   uint64
	batchSize int
	limit     uint64
}

// ScannerConfig holds configuration for a scanner.
type ScannerConfig struct {
	// ID is the persisted cursor key, e.g. "erc8004_identity_base".
	ID string

	// Source is the chain gateway. Required.
	Source ChainSource

	// Cursors persists scan progress. Required.
	Cursors CursorStore

	// Stop is the budget governor. Required.
	Stop StopSignal

	// Handler decodes and persists this source's events. Required.
	Handler Handler

	// Genesis is the first block to scan when no cursor exists.
	Genesis uint64

	// BatchSize caps the per-call block window. Default and maximum: 10.
	BatchSize int

	// Limit caps the blocks scanned this run. Zero means no cap.
	Limit uint64
}

// Summary reports one scanner run.
type Summary struct {
	ScannerID       string        `json:"scannerId"`
	FromBlock       uint64        `json:"fromBlock"`
	ToBlock         uint64        `json:"toBlock"`
	BlocksScanned   uint64        `json:"blocksScanned"`
	Batches         int           `json:"batches"`
	EventsFound     int           `json:"eventsFound"`
	UpToDate        bool          `json:"upToDate"`
	StoppedByBudget bool          `json:"stoppedByBudget"`
	Duration        time.Duration `json:"duration"`
}

// NewScanner validates the configuration and returns a scanner.
func NewScanner(cfg *ScannerConfig) (*Scanner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("scanner id cannot be empty")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("chain source cannot be nil")
	}
	if cfg.Cursors == nil {
		return nil, fmt.Errorf("cursor store cannot be nil")
	}
	if cfg.Stop == nil {
		return nil, fmt.Errorf("stop signal cannot be nil")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 0 || batchSize > DefaultBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds the provider log window of %d blocks", batchSize, DefaultBatchSize)
	}

	return &Scanner{
		id:        cfg.ID,
		source:    cfg.Source,
		cursors:   cfg.Cursors,
		stop:      cfg.Stop,
		handler:   cfg.Handler,
		genesis:   cfg.Genesis,
		batchSize: batchSize,
		limit:     cfg.Limit,
	}, nil
}

// Run executes one scan from the cursor (or genesis) toward the chain
// head, committing the cursor after every batch. Interrupting and
// restarting continues from the cursor.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	logger := logging.FromContext(ctx).WithField("scanner", s.id)
	start := time.Now()
	summary := &Summary{ScannerID: s.id}

	state, err := s.cursors.Get(ctx, s.id)
	if err != nil {
		return summary, fmt.Errorf("failed to read cursor: %w", err)
	}

	from := s.genesis
	if state != nil {
		from = state.LastBlock + 1
	}

	head, err := s.source.Head(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to get chain head: %w", err)
	}

	if from > head {
		logger.WithFields(map[string]interface{}{"from": from, "head": head}).Info("up to date")
		summary.UpToDate = true
		summary.Duration = time.Since(start)
		return summary, nil
	}

	to := head
	if s.limit > 0 && from+s.limit-1 < to {
		to = from + s.limit - 1
	}
	summary.FromBlock = from
	summary.ToBlock = to

	logger.WithFields(map[string]interface{}{"from": from, "to": to, "head": head}).Info("scan starting")

	for cur := from; cur <= to; {
		if s.stop.ShouldStop() {
			logger.Warn("budget stop flag set, halting scan")
			summary.StoppedByBudget = true
			break
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		batchEnd := cur + uint64(s.batchSize) - 1
		if batchEnd > to {
			batchEnd = to
		}

		logs, err := s.source.FilterLogs(ctx, s.handler.Query(cur, batchEnd))
		if err != nil {
			return summary, fmt.Errorf("batch [%d,%d] failed: %w", cur, batchEnd, err)
		}

		found, err := s.handler.HandleLogs(ctx, logs)
		summary.EventsFound += found
		if err != nil {
			return summary, fmt.Errorf("batch [%d,%d] failed: %w", cur, batchEnd, err)
		}

		if err := s.commitCursor(ctx, batchEnd); err != nil {
			// A lost cursor is safe: every insert is idempotent, so the
			// next run redoes the batch without duplicating rows.
			logger.WithError(err).Error("cursor commit failed after retry, aborting run")
			return summary, fmt.Errorf("cursor commit at block %d failed: %w", batchEnd, err)
		}

		summary.Batches++
		summary.BlocksScanned += batchEnd - cur + 1
		cur = batchEnd + 1

		if cur <= to {
			if err := s.source.Pace(ctx); err != nil {
				return summary, err
			}
		}
	}

	summary.Duration = time.Since(start)
	logger.WithFields(map[string]interface{}{
		"blocks":  summary.BlocksScanned,
		"batches": summary.Batches,
		"events":  summary.EventsFound,
	}).Info("scan finished")
	return summary, nil
}

// commitCursor advances the cursor, retrying once on failure.
func (s *Scanner) commitCursor(ctx context.Context, lastBlock uint64) error {
	err := s.cursors.Upsert(ctx, s.id, lastBlock)
	if err == nil {
		return nil
	}
	return s.cursors.Upsert(ctx, s.id, lastBlock)
}
