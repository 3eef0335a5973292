package indexer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-scanner/internal/models"
)

func newBlock(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}

type fakeSource struct {
	head    uint64
	logs    map[[2]uint64][]ethtypes.Log
	windows [][2]uint64
	paces   int
}

func (f *fakeSource) Head(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	window := [2]uint64{query.FromBlock.Uint64(), query.ToBlock.Uint64()}
	f.windows = append(f.windows, window)
	return f.logs[window], nil
}

func (f *fakeSource) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeSource) Pace(ctx context.Context) error {
	f.paces++
	return nil
}

type fakeCursors struct {
	cursors  map[string]uint64
	failures int
	upserts  int
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{cursors: make(map[string]uint64)}
}

func (f *fakeCursors) Get(ctx context.Context, scannerID string) (*models.IndexerState, error) {
	last, ok := f.cursors[scannerID]
	if !ok {
		return nil, nil
	}
	return &models.IndexerState{ScannerID: scannerID, LastBlock: last}, nil
}

func (f *fakeCursors) Upsert(ctx context.Context, scannerID string, lastBlock uint64) error {
	f.upserts++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	f.cursors[scannerID] = lastBlock
	return nil
}

type fakeStop struct {
	stopAfter int
	polls     int
}

func (f *fakeStop) ShouldStop() bool {
	f.polls++
	return f.stopAfter > 0 && f.polls > f.stopAfter
}

type countingHandler struct {
	batches int
	events  int
	err     error
}

func (h *countingHandler) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: newBlock(from),
		ToBlock:   newBlock(to),
	}
}

func (h *countingHandler) HandleLogs(ctx context.Context, logs []ethtypes.Log) (int, error) {
	h.batches++
	h.events += len(logs)
	return len(logs), h.err
}

func newTestScanner(t *testing.T, cfg *ScannerConfig) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg)
	require.NoError(t, err)
	return s
}

func TestNewScanner_RejectsOversizedBatch(t *testing.T) {
	_, err := NewScanner(&ScannerConfig{
		ID:        "test",
		Source:    &fakeSource{},
		Cursors:   newFakeCursors(),
		Stop:      &fakeStop{},
		Handler:   &countingHandler{},
		BatchSize: 11,
	})
	assert.Error(t, err)
}

func TestScanner_BatchesInTenBlockWindows(t *testing.T) {
	source := &fakeSource{head: 125}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
	})

	summary, err := scanner.Run(context.Background())
	require.NoError(t, err)

	// Resume at cursor+1 and cover [100,125] in windows of at most 10.
	assert.Equal(t, [][2]uint64{{100, 109}, {110, 119}, {120, 125}}, source.windows)
	assert.Equal(t, uint64(100), summary.FromBlock)
	assert.Equal(t, uint64(125), summary.ToBlock)
	assert.Equal(t, uint64(26), summary.BlocksScanned)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, uint64(125), cursors.cursors["test"])
	// Pacing happens between batches, not after the last one.
	assert.Equal(t, 2, source.paces)
}

func TestScanner_StartsAtGenesisWithoutCursor(t *testing.T) {
	source := &fakeSource{head: 57}
	cursors := newFakeCursors()

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
		Genesis: 50,
	})

	summary, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]uint64{{50, 57}}, source.windows)
	assert.Equal(t, uint64(8), summary.BlocksScanned)
}

func TestScanner_UpToDate(t *testing.T) {
	source := &fakeSource{head: 100}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 100

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
	})

	summary, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.UpToDate)
	assert.Empty(t, source.windows)
	assert.Equal(t, uint64(100), cursors.cursors["test"])
}

func TestScanner_LimitCapsRun(t *testing.T) {
	source := &fakeSource{head: 10_000}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
		Limit:   25,
	})

	summary, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(124), summary.ToBlock)
	assert.Equal(t, uint64(25), summary.BlocksScanned)
	assert.Equal(t, uint64(124), cursors.cursors["test"])
}

func TestScanner_BudgetStopPreservesCursor(t *testing.T) {
	source := &fakeSource{head: 199}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99

	// Allow two batches, then the governor flag flips.
	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{stopAfter: 2},
		Handler: &countingHandler{},
	})

	summary, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.StoppedByBudget)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, uint64(119), cursors.cursors["test"])
}

func TestScanner_CursorCommitRetriesOnce(t *testing.T) {
	source := &fakeSource{head: 109}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99
	cursors.failures = 1

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
	})

	_, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(109), cursors.cursors["test"])
}

func TestScanner_PersistentCursorFailureAborts(t *testing.T) {
	source := &fakeSource{head: 129}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99
	cursors.failures = 2

	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{},
	})

	summary, err := scanner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, summary.Batches)
	// The cursor never advanced; a rerun redoes the batch.
	assert.Equal(t, uint64(99), cursors.cursors["test"])
}

func TestScanner_HandlerErrorAborts(t *testing.T) {
	source := &fakeSource{head: 129}
	cursors := newFakeCursors()
	cursors.cursors["test"] = 99

	handlerErr := errors.New("receipt fetch failed")
	scanner := newTestScanner(t, &ScannerConfig{
		ID:      "test",
		Source:  source,
		Cursors: cursors,
		Stop:    &fakeStop{},
		Handler: &countingHandler{err: handlerErr},
	})

	_, err := scanner.Run(context.Background())
	assert.ErrorIs(t, err, handlerErr)
	assert.Equal(t, uint64(99), cursors.cursors["test"])
}
