package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// APIKeyRepository handles API key and daily usage persistence. The core
// owns the write side; the read API consumes these rows.
type APIKeyRepository struct {
	db *PostgresDB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *PostgresDB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key. Only the key hash is persisted.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.Tier == "" {
		key.Tier = types.TierFree
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_keys (id, key_hash, name, tier, daily_quota, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		key.ID, key.KeyHash, key.Name, key.Tier, key.DailyQuota, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetByHash looks an API key up by its hash. Returns nil without error
// when no key matches.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT id, key_hash, name, tier, daily_quota, created_at
		FROM api_keys
		WHERE key_hash = $1
	`

	var key models.APIKey
	err := r.db.Pool().QueryRow(ctx, query, keyHash).Scan(
		&key.ID, &key.KeyHash, &key.Name, &key.Tier, &key.DailyQuota, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

// RecordUsage increments today's request counter for a key and returns the
// new count. The (key_id, date) upsert keeps the counter race-safe across
// concurrent requests.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, keyID uuid.UUID, day time.Time) (int, error) {
	query := `
		INSERT INTO api_usage (key_id, date, request_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key_id, date)
		DO UPDATE SET request_count = api_usage.request_count + 1
		RETURNING request_count
	`

	var count int
	err := r.db.Pool().QueryRow(ctx, query, keyID, day.UTC().Truncate(24*time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to record api usage: %w", err)
	}
	return count, nil
}

// UsageOn returns the request count for a key on a given day.
func (r *APIKeyRepository) UsageOn(ctx context.Context, keyID uuid.UUID, day time.Time) (int, error) {
	query := `
		SELECT request_count FROM api_usage
		WHERE key_id = $1 AND date = $2
	`

	var count int
	err := r.db.Pool().QueryRow(ctx, query, keyID, day.UTC().Truncate(24*time.Hour)).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get api usage: %w", err)
	}
	return count, nil
}

// QuotaExceeded reports whether a key has used up its daily quota.
func (r *APIKeyRepository) QuotaExceeded(ctx context.Context, key *models.APIKey, day time.Time) (bool, error) {
	count, err := r.UsageOn(ctx, key.ID, day)
	if err != nil {
		return false, err
	}
	return count >= key.DailyQuota, nil
}
