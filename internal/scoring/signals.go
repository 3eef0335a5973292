// Package scoring derives per-wallet trust scores from aggregated
// on-chain signals.
package scoring

import (
	"math"
	"time"

	"github.com/trust-scanner/internal/models"
)

// Signal weights. They must sum to 1.0; composition asserts this at
// package init.
const (
	WeightLoyalty   = 0.30
	WeightActivity  = 0.18
	WeightDiversity = 0.16
	WeightFeedback  = 0.15
	WeightVolume    = 0.10
	WeightRecency   = 0.06
	WeightAge       = 0.05
)

// RegistrationBonus is added to the composed score for wallets holding an
// identity registration.
const RegistrationBonus = 5

func init() {
	sum := WeightLoyalty + WeightActivity + WeightDiversity + WeightFeedback +
		WeightVolume + WeightRecency + WeightAge
	if math.Abs(sum-1.0) > 1e-9 {
		panic("signal weights must sum to 1.0")
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ActivityScore rewards transaction volume on a log curve that saturates
// around 100 transactions.
func ActivityScore(txCount int) float64 {
	if txCount <= 0 {
		return 0
	}
	return clamp(100 * math.Log10(float64(txCount)+1) / math.Log10(101))
}

// DiversityScore rewards distinct counterparties, capping at 30.
func DiversityScore(counterparties int) float64 {
	if counterparties <= 0 {
		return 0
	}
	return clamp(100 * math.Log10(float64(counterparties)+1) / math.Log10(31))
}

// LoyaltyScore rewards repeat business per counterparty. Hyper-concentrated
// patterns, many transactions spread over fewer than three counterparties,
// are capped at 40 as a sybil shield.
func LoyaltyScore(txCount, counterparties int) float64 {
	if txCount <= 1 || counterparties == 0 {
		return 0
	}
	r := float64(txCount) / float64(counterparties)
	score := clamp(100 * (r - 1) / 4)
	if r > 20 && counterparties < 3 && score > 40 {
		score = 40
	}
	return score
}

// FeedbackScore blends the mean feedback value (on a 0..5 scale) toward
// the neutral 50 when few reviews exist, reaching full confidence at ten.
func FeedbackScore(avgFeedback *float64, feedbackCount int) float64 {
	if feedbackCount == 0 || avgFeedback == nil {
		return 50
	}
	raw := math.Min(100, *avgFeedback/5*100)
	confidence := math.Min(1, float64(feedbackCount)/10)
	return clamp(confidence*raw + (1-confidence)*50)
}

// VolumeScore rewards average deal size on a log curve that saturates at
// 10000 USDC per counterparty. No volume data is neutral, not damning.
func VolumeScore(totalVolumeUSDC float64, counterparties int) float64 {
	if totalVolumeUSDC <= 0 || counterparties <= 0 {
		return 50
	}
	d := totalVolumeUSDC / float64(counterparties)
	return clamp(100 * math.Log10(d+1) / math.Log10(10001))
}

// AgeScore rewards account age on a log curve saturating at 180 days.
func AgeScore(firstSeenAt, now time.Time) float64 {
	if firstSeenAt.IsZero() {
		return 0
	}
	days := now.Sub(firstSeenAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return clamp(100 * math.Log10(days+1) / math.Log10(181))
}

// RecencyScore penalizes staleness: full marks within a week of the last
// sighting, zero after 90 days, linear in between.
func RecencyScore(lastSeenAt, now time.Time) float64 {
	if lastSeenAt.IsZero() {
		return 0
	}
	days := now.Sub(lastSeenAt).Hours() / 24
	switch {
	case days < 0:
		return 100
	case days <= 7:
		return 100
	case days >= 90:
		return 0
	default:
		return 100 * (90 - days) / 83
	}
}

// SignalBundle holds the aggregated inputs for scoring one wallet.
type SignalBundle struct {
	TxCount              int
	FirstSeenAt          time.Time
	LastSeenAt           time.Time
	Counterparties       int
	AvgFeedback          *float64
	FeedbackCount        int
	TotalVolumeUSDC      float64
	VolumeCounterparties int
	IsRegistered         bool
}

// Result is one composed score with its persisted breakdown.
type Result struct {
	Score     int
	Breakdown map[string]int
}

// Compute runs every shaper, composes the weighted sum from the rounded
// per-signal values, applies the registration bonus, and clamps to
// [0,100]. Recomputing the weighted sum from a persisted breakdown
// therefore reproduces the stored score exactly.
func Compute(b *SignalBundle, now time.Time) *Result {
	breakdown := map[string]int{
		models.SignalLoyalty:   round(LoyaltyScore(b.TxCount, b.Counterparties)),
		models.SignalActivity:  round(ActivityScore(b.TxCount)),
		models.SignalDiversity: round(DiversityScore(b.Counterparties)),
		models.SignalFeedback:  round(FeedbackScore(b.AvgFeedback, b.FeedbackCount)),
		models.SignalVolume:    round(VolumeScore(b.TotalVolumeUSDC, b.VolumeCounterparties)),
		models.SignalAge:       round(AgeScore(b.FirstSeenAt, now)),
		models.SignalRecency:   round(RecencyScore(b.LastSeenAt, now)),
	}

	weighted := float64(breakdown[models.SignalLoyalty])*WeightLoyalty +
		float64(breakdown[models.SignalActivity])*WeightActivity +
		float64(breakdown[models.SignalDiversity])*WeightDiversity +
		float64(breakdown[models.SignalFeedback])*WeightFeedback +
		float64(breakdown[models.SignalVolume])*WeightVolume +
		float64(breakdown[models.SignalRecency])*WeightRecency +
		float64(breakdown[models.SignalAge])*WeightAge

	score := round(weighted)
	bonus := 0
	if b.IsRegistered {
		bonus = RegistrationBonus
		score += bonus
	}
	breakdown[models.SignalRegisteredBonus] = bonus

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &Result{Score: score, Breakdown: breakdown}
}

func round(v float64) int {
	return int(math.Round(v))
}
