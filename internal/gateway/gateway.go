// Package gateway provides a thin, budget-tracked adapter over one EVM
// chain's JSON-RPC endpoint.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/trust-scanner/internal/budget"
	"github.com/trust-scanner/internal/retry"
	"github.com/trust-scanner/internal/types"
)

// Gateway issues typed RPC operations against one EVM chain. Every call
// reports its method to the budget governor before the network round trip,
// carries a per-call timeout, and retries transient failures with the
// standard 3-attempt backoff.
type Gateway struct {
	chain       types.ChainID
	client      *ethclient.Client
	governor    *budget.Governor
	retryConfig *retry.Config
	callTimeout time.Duration
	pacer       *rate.Limiter
}

// Config holds configuration for creating a Gateway.
type Config struct {
	// Chain is the chain identifier. Required.
	Chain types.ChainID

	// RPCURL is the full endpoint URL. Required.
	RPCURL string

	// Governor records CU usage. Required.
	Governor *budget.Governor

	// Pacing is the minimum interval between paced batches.
	Pacing time.Duration

	// CallTimeout bounds each RPC attempt. Default: 30s.
	CallTimeout time.Duration

	// Retry overrides the default retry discipline, used in tests.
	Retry *retry.Config
}

// New dials the endpoint and returns a gateway.
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Governor == nil {
		return nil, fmt.Errorf("budget governor cannot be nil")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", cfg.Chain, err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 30 * time.Second
	}
	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}

	pacing := cfg.Pacing
	if pacing <= 0 {
		pacing = 100 * time.Millisecond
	}

	return &Gateway{
		chain:       cfg.Chain,
		client:      client,
		governor:    cfg.Governor,
		retryConfig: retryConfig,
		callTimeout: callTimeout,
		pacer:       rate.NewLimiter(rate.Every(pacing), 1),
	}, nil
}

// Chain returns the chain this gateway serves.
func (g *Gateway) Chain() types.ChainID {
	return g.chain
}

// Close releases the underlying RPC connection.
func (g *Gateway) Close() {
	g.client.Close()
}

// Pace blocks until the per-chain pacing interval has elapsed since the
// previous paced call. Scanners call it between batches.
func (g *Gateway) Pace(ctx context.Context) error {
	return g.pacer.Wait(ctx)
}

// Head returns the current chain head block number.
func (g *Gateway) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := g.call(ctx, budget.MethodEthBlockNumber, func(ctx context.Context) error {
		var err error
		head, err = g.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get chain head: %w", g.chain, err)
	}
	return head, nil
}

// FilterLogs fetches event logs matching the query. The caller is
// responsible for keeping the block window within the provider limit.
func (g *Gateway) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	var logs []ethtypes.Log
	err := g.call(ctx, budget.MethodEthGetLogs, func(ctx context.Context) error {
		var err error
		logs, err = g.client.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch logs: %w", g.chain, err)
	}
	return logs, nil
}

// TransactionReceipt fetches the receipt for a transaction hash.
func (g *Gateway) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt
	err := g.call(ctx, budget.MethodEthGetTransactionReceipt, func(ctx context.Context) error {
		var err error
		receipt, err = g.client.TransactionReceipt(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch receipt %s: %w", g.chain, txHash.Hex(), err)
	}
	return receipt, nil
}

// TransactionByHash fetches the transaction envelope for a hash. Pending
// transactions are reported as such; scanners skip them.
func (g *Gateway) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	var tx *ethtypes.Transaction
	var pending bool
	err := g.call(ctx, budget.MethodEthGetTransactionByHash, func(ctx context.Context) error {
		var err error
		tx, pending, err = g.client.TransactionByHash(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: failed to fetch transaction %s: %w", g.chain, txHash.Hex(), err)
	}
	return tx, pending, nil
}

// call runs one RPC operation under the retry discipline. The CU cost is
// recorded before every attempt so retried calls are billed like the
// provider bills them.
func (g *Gateway) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, g.retryConfig, retry.Classify, func(ctx context.Context) error {
		g.governor.Record(method, 1)

		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
}
