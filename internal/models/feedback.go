package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trust-scanner/internal/types"
)

// Feedback represents one attestation about an agent identity.
// Keyed by (tx_hash, feedback_index); inserts are idempotent on that key.
// On-chain feedback carries source=chain; API-submitted feedback carries
// source=api and must tie to a transaction the submitter participated in.
type Feedback struct {
	TxHash         string               `json:"txHash" db:"tx_hash"`
	FeedbackIndex  uint                 `json:"feedbackIndex" db:"feedback_index"`
	AgentID        int64                `json:"agentId" db:"agent_id"`
	ClientAddress  string               `json:"clientAddress" db:"client_address"`
	Value          decimal.Decimal      `json:"value" db:"value"`
	ValueDecimals  int                  `json:"valueDecimals" db:"value_decimals"`
	Tag1           *string              `json:"tag1,omitempty" db:"tag1"`
	Tag2           *string              `json:"tag2,omitempty" db:"tag2"`
	Endpoint       *string              `json:"endpoint,omitempty" db:"endpoint"`
	FeedbackURI    *string              `json:"feedbackUri,omitempty" db:"feedback_uri"`
	ContentHash    []byte               `json:"contentHash,omitempty" db:"content_hash"`
	Chain          types.ChainID        `json:"chain" db:"chain"`
	BlockNumber    uint64               `json:"blockNumber" db:"block_number"`
	BlockTimestamp *time.Time           `json:"blockTimestamp,omitempty" db:"block_timestamp"`
	Source         types.FeedbackSource `json:"source" db:"source"`
}
