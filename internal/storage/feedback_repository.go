package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// FeedbackRepository handles feedback data persistence
type FeedbackRepository struct {
	db *PostgresDB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *PostgresDB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Insert inserts a feedback row idempotently on (tx_hash, feedback_index).
// Returns true when a new row was written.
func (r *FeedbackRepository) Insert(ctx context.Context, fb *models.Feedback) (bool, error) {
	if err := ValidateAddress(fb.ClientAddress); err != nil {
		return false, err
	}

	query := `
		INSERT INTO feedback (
			tx_hash, feedback_index, agent_id, client_address, value,
			value_decimals, tag1, tag2, endpoint, feedback_uri,
			content_hash, chain, block_number, block_timestamp, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tx_hash, feedback_index) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		strings.ToLower(fb.TxHash),
		fb.FeedbackIndex,
		fb.AgentID,
		strings.ToLower(fb.ClientAddress),
		fb.Value,
		fb.ValueDecimals,
		fb.Tag1,
		fb.Tag2,
		fb.Endpoint,
		fb.FeedbackURI,
		fb.ContentHash,
		fb.Chain,
		fb.BlockNumber,
		fb.BlockTimestamp,
		fb.Source,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert feedback %s/%d: %w", fb.TxHash, fb.FeedbackIndex, err)
	}
	return result.RowsAffected() > 0, nil
}

// apiFeedbackIndexBase keeps API-submitted rows clear of on-chain log
// indexes on the same transaction hash. The submitter's participant slot
// is added so the payer and the recipient each get their own row, and a
// resubmission from either side is an idempotent no-op.
const apiFeedbackIndexBase = 1 << 20

// InsertFromAPI persists API-submitted feedback after verifying the
// submitter participated in the referenced transaction. The feedback
// index is derived from the submitter's side of the payment.
func (r *FeedbackRepository) InsertFromAPI(ctx context.Context, txRepo *TransactionRepository, fb *models.Feedback) (bool, error) {
	slot, participated, err := txRepo.ParticipantSlot(ctx, fb.TxHash, fb.ClientAddress)
	if err != nil {
		return false, err
	}
	if !participated {
		return false, &types.ServiceError{
			Code:    "FEEDBACK_NOT_PARTICIPANT",
			Message: fmt.Sprintf("address %s did not participate in transaction %s", fb.ClientAddress, fb.TxHash),
		}
	}

	fb.FeedbackIndex = apiFeedbackIndexBase + uint(slot)
	fb.Source = types.FeedbackFromAPI
	return r.Insert(ctx, fb)
}

// Count returns the total number of feedback rows.
func (r *FeedbackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// FeedbackStat aggregates feedback addressed to one agent identity.
type FeedbackStat struct {
	Count    int
	AvgValue decimal.Decimal
}

// AgentStats returns feedback count and mean value per agent id in one
// set-oriented query. Feedback joins to wallets by erc8004_id at scoring
// time.
func (r *FeedbackRepository) AgentStats(ctx context.Context) (map[int64]FeedbackStat, error) {
	query := `
		SELECT agent_id, COUNT(*), AVG(value)
		FROM feedback
		GROUP BY agent_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent feedback stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[int64]FeedbackStat)
	for rows.Next() {
		var agentID int64
		var stat FeedbackStat
		if err := rows.Scan(&agentID, &stat.Count, &stat.AvgValue); err != nil {
			return nil, fmt.Errorf("failed to scan agent feedback stat: %w", err)
		}
		stats[agentID] = stat
	}
	return stats, rows.Err()
}
