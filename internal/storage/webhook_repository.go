package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trust-scanner/internal/models"
)

// WebhookRepository handles webhook registrations and delivery metadata.
type WebhookRepository struct {
	db *PostgresDB
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *PostgresDB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create registers a new webhook for an API key.
func (r *WebhookRepository) Create(ctx context.Context, hook *models.Webhook) error {
	if hook.ID == uuid.Nil {
		hook.ID = uuid.New()
	}
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = time.Now().UTC()
	}
	if hook.WalletAddress != nil {
		if err := ValidateAddress(*hook.WalletAddress); err != nil {
			return err
		}
		lowered := strings.ToLower(*hook.WalletAddress)
		hook.WalletAddress = &lowered
	}

	query := `
		INSERT INTO webhooks (
			id, api_key_id, url, wallet_address, event_type,
			threshold, active, failure_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0, $7)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		hook.ID, hook.APIKeyID, hook.URL, hook.WalletAddress,
		hook.EventType, hook.Threshold, hook.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	hook.Active = true
	return nil
}

// ListActive returns every active webhook. The dispatcher matches each
// score delta against this set.
func (r *WebhookRepository) ListActive(ctx context.Context) ([]*models.Webhook, error) {
	query := `
		SELECT id, api_key_id, url, wallet_address, event_type,
			   threshold, active, failure_count, last_delivery, created_at
		FROM webhooks
		WHERE active
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		var hook models.Webhook
		err := rows.Scan(
			&hook.ID, &hook.APIKeyID, &hook.URL, &hook.WalletAddress,
			&hook.EventType, &hook.Threshold, &hook.Active,
			&hook.FailureCount, &hook.LastDelivery, &hook.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		hooks = append(hooks, &hook)
	}
	return hooks, rows.Err()
}

// RecordSuccess resets the consecutive-failure counter after a delivery.
func (r *WebhookRepository) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhooks
		SET failure_count = 0, last_delivery = $2
		WHERE id = $1
	`
	_, err := r.db.Pool().Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record webhook success: %w", err)
	}
	return nil
}

// RecordFailure increments the consecutive-failure counter and disables
// the webhook once it reaches maxFailures. Returns the new counter value.
func (r *WebhookRepository) RecordFailure(ctx context.Context, id uuid.UUID, maxFailures int) (int, error) {
	query := `
		UPDATE webhooks
		SET failure_count = failure_count + 1,
			active = (failure_count + 1 < $2)
		WHERE id = $1
		RETURNING failure_count
	`
	var count int
	err := r.db.Pool().QueryRow(ctx, query, id, maxFailures).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to record webhook failure: %w", err)
	}
	return count, nil
}

// Enable re-activates a disabled webhook and clears its failure counter.
// Operator-facing: disabled hooks stay off until explicitly re-enabled.
func (r *WebhookRepository) Enable(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhooks
		SET active = TRUE, failure_count = 0
		WHERE id = $1
	`
	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to enable webhook: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("webhook not found: %s", id)
	}
	return nil
}
