package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/trust-scanner/internal/types"
)

// APIKey represents one issued API key. Only the hash of the key material
// is stored.
type APIKey struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	KeyHash    string        `json:"-" db:"key_hash"`
	Name       string        `json:"name" db:"name"`
	Tier       types.APITier `json:"tier" db:"tier"`
	DailyQuota int           `json:"dailyQuota" db:"daily_quota"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
}

// APIUsage is the per-day request counter for a key, keyed by (key, date).
type APIUsage struct {
	KeyID        uuid.UUID `json:"keyId" db:"key_id"`
	Date         time.Time `json:"date" db:"date"`
	RequestCount int       `json:"requestCount" db:"request_count"`
}
