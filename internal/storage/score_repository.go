package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// ScoreRepository handles the append-only score history. Snapshots are
// written only by the scoring engine.
type ScoreRepository struct {
	db *PostgresDB
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *PostgresDB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// InsertSnapshot appends one history row inside the caller's transaction.
// The snapshot write precedes the wallet update within the same unit so
// history never misses a persisted score.
func (r *ScoreRepository) InsertSnapshot(ctx context.Context, tx pgx.Tx, address string, score int, breakdown map[string]int, computedAt time.Time) error {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO score_history (address, score, breakdown, computed_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = tx.Exec(ctx, query, strings.ToLower(address), score, breakdownJSON, computedAt)
	if err != nil {
		return fmt.Errorf("failed to insert score snapshot: %w", err)
	}
	return nil
}

// History returns the most recent snapshots for an address, newest first.
func (r *ScoreRepository) History(ctx context.Context, address string, limit int) ([]*models.ScoreSnapshot, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, address, score, breakdown, computed_at
		FROM score_history
		WHERE address = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.ScoreSnapshot
	for rows.Next() {
		var snap models.ScoreSnapshot
		var breakdownJSON []byte
		if err := rows.Scan(&snap.ID, &snap.Address, &snap.Score, &breakdownJSON, &snap.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score snapshot: %w", err)
		}
		if err := json.Unmarshal(breakdownJSON, &snap.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, rows.Err()
}

// ScoreRow is one (address, score) pair from the wallets table.
type ScoreRow struct {
	Address string
	Score   int
}

// TierDistribution returns the count of scored wallets per tier band.
func (r *ScoreRepository) TierDistribution(ctx context.Context) (map[types.TrustTier]int64, error) {
	query := `
		SELECT trust_score, COUNT(*)
		FROM wallets
		WHERE trust_score IS NOT NULL
		GROUP BY trust_score
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[types.TrustTier]int64)
	for rows.Next() {
		var score int
		var count int64
		if err := rows.Scan(&score, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier distribution: %w", err)
		}
		dist[types.TierForScore(score)] += count
	}
	return dist, rows.Err()
}

// TopScores returns the highest-scored wallets, for the run summary.
func (r *ScoreRepository) TopScores(ctx context.Context, n int) ([]ScoreRow, error) {
	return r.scoresOrdered(ctx, n, "DESC")
}

// BottomScores returns the lowest-scored wallets, for the run summary.
func (r *ScoreRepository) BottomScores(ctx context.Context, n int) ([]ScoreRow, error) {
	return r.scoresOrdered(ctx, n, "ASC")
}

func (r *ScoreRepository) scoresOrdered(ctx context.Context, n int, direction string) ([]ScoreRow, error) {
	query := fmt.Sprintf(`
		SELECT address, trust_score
		FROM wallets
		WHERE trust_score IS NOT NULL
		ORDER BY trust_score %s, address
		LIMIT $1
	`, direction)

	rows, err := r.db.Pool().Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var result []ScoreRow
	for rows.Next() {
		var row ScoreRow
		if err := rows.Scan(&row.Address, &row.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
