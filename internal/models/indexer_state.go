package models

import "time"

// IndexerState is the persisted cursor for one scanner. LastBlock is
// inclusive: the next scan starts at LastBlock+1. It advances
// monotonically per successful batch commit.
type IndexerState struct {
	ScannerID string    `json:"scannerId" db:"scanner_id"`
	LastBlock uint64    `json:"lastBlock" db:"last_block"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
