package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trust-scanner/internal/models"
)

// IndexerStateRepository handles scanner cursor persistence. Each cursor
// is mutated only by its owning scanner.
type IndexerStateRepository struct {
	db *PostgresDB
}

// NewIndexerStateRepository creates a new indexer state repository
func NewIndexerStateRepository(db *PostgresDB) *IndexerStateRepository {
	return &IndexerStateRepository{db: db}
}

// Get retrieves the cursor for a scanner. Returns nil without error when
// no cursor exists yet (first run uses the configured genesis block).
func (r *IndexerStateRepository) Get(ctx context.Context, scannerID string) (*models.IndexerState, error) {
	query := `
		SELECT scanner_id, last_block, updated_at
		FROM indexer_state
		WHERE scanner_id = $1
	`

	var state models.IndexerState
	err := r.db.Pool().QueryRow(ctx, query, scannerID).Scan(
		&state.ScannerID,
		&state.LastBlock,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get indexer state: %w", err)
	}
	return &state, nil
}

// Upsert advances the cursor to lastBlock. The GREATEST guard keeps the
// cursor monotone even if a stale commit races a newer one.
func (r *IndexerStateRepository) Upsert(ctx context.Context, scannerID string, lastBlock uint64) error {
	query := `
		INSERT INTO indexer_state (scanner_id, last_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (scanner_id)
		DO UPDATE SET
			last_block = GREATEST(indexer_state.last_block, EXCLUDED.last_block),
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query, scannerID, lastBlock, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert indexer state for %s: %w", scannerID, err)
	}
	return nil
}

// List returns every cursor, used by the run summary.
func (r *IndexerStateRepository) List(ctx context.Context) ([]*models.IndexerState, error) {
	query := `
		SELECT scanner_id, last_block, updated_at
		FROM indexer_state
		ORDER BY scanner_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexer state: %w", err)
	}
	defer rows.Close()

	var states []*models.IndexerState
	for rows.Next() {
		var state models.IndexerState
		if err := rows.Scan(&state.ScannerID, &state.LastBlock, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indexer state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}
