package models

import "time"

// Breakdown map keys persisted with every score. registered_bonus is 5 or 0;
// the rest are the integer-rounded shaper outputs.
const (
	SignalLoyalty         = "loyalty"
	SignalActivity        = "activity"
	SignalDiversity       = "diversity"
	SignalFeedback        = "feedback"
	SignalVolume          = "volume"
	SignalAge             = "age"
	SignalRecency         = "recency"
	SignalRegisteredBonus = "registered_bonus"
)

// ScoreSnapshot is one row of the append-only score history for a wallet.
// Written only by the scoring engine, one row per scoring pass.
type ScoreSnapshot struct {
	ID         int64          `json:"id" db:"id"`
	Address    string         `json:"address" db:"address"`
	Score      int            `json:"score" db:"score"`
	Breakdown  map[string]int `json:"breakdown" db:"breakdown"`
	ComputedAt time.Time      `json:"computedAt" db:"computed_at"`
}
