package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/trust-scanner/internal/types"
)

// Webhook represents one registered score notification target. A nil
// WalletAddress matches every wallet; a nil Threshold disables the
// crossing check.
type Webhook struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	APIKeyID      uuid.UUID          `json:"apiKeyId" db:"api_key_id"`
	URL           string             `json:"url" db:"url"`
	WalletAddress *string            `json:"walletAddress,omitempty" db:"wallet_address"`
	EventType     types.WebhookEvent `json:"eventType" db:"event_type"`
	Threshold     *int               `json:"threshold,omitempty" db:"threshold"`
	Active        bool               `json:"active" db:"active"`
	FailureCount  int                `json:"failureCount" db:"failure_count"`
	LastDelivery  *time.Time         `json:"lastDelivery,omitempty" db:"last_delivery"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
}
