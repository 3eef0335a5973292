package models

import (
	"time"

	"github.com/trust-scanner/internal/types"
)

// Wallet represents an observed on-chain agent wallet. Created by the
// first indexer batch that observes it; later observations mutate but
// never delete it.
type Wallet struct {
	Address        string             `json:"address" db:"address"`
	Source         types.WalletSource `json:"source" db:"source"`
	Chain          types.ChainID      `json:"chain" db:"chain"`
	ERC8004ID      *int64             `json:"erc8004Id,omitempty" db:"erc8004_id"`
	TxCount        int                `json:"txCount" db:"tx_count"`
	FirstSeenAt    time.Time          `json:"firstSeenAt" db:"first_seen_at"`
	LastSeenAt     time.Time          `json:"lastSeenAt" db:"last_seen_at"`
	TrustScore     *int               `json:"trustScore,omitempty" db:"trust_score"`
	ScoreBreakdown map[string]int     `json:"scoreBreakdown,omitempty" db:"score_breakdown"`
	ScoredAt       *time.Time         `json:"scoredAt,omitempty" db:"scored_at"`
	Role           *types.WalletRole  `json:"role,omitempty" db:"role"`
	NeedsRescore   bool               `json:"needsRescore" db:"needs_rescore"`
}
