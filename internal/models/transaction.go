package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trust-scanner/internal/types"
)

// Transaction represents one settled USDC payment observed on chain.
// Identified by (tx_hash, chain); inserts are idempotent on that key.
// At least one of payer/recipient is always present.
type Transaction struct {
	TxHash         string          `json:"txHash" db:"tx_hash"`
	Chain          types.ChainID   `json:"chain" db:"chain"`
	BlockNumber    uint64          `json:"blockNumber" db:"block_number"`
	Authorizer     *string         `json:"authorizer,omitempty" db:"authorizer"`
	Payer          *string         `json:"payer,omitempty" db:"payer"`
	Recipient      *string         `json:"recipient,omitempty" db:"recipient"`
	AmountRaw      string          `json:"amountRaw" db:"amount_raw"`
	AmountUSDC     decimal.Decimal `json:"amountUsdc" db:"amount_usdc"`
	Facilitator    *string         `json:"facilitator,omitempty" db:"facilitator"`
	IsX402         bool            `json:"isX402" db:"is_x402"`
	BlockTimestamp *time.Time      `json:"blockTimestamp,omitempty" db:"block_timestamp"`
}
