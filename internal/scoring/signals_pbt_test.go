package scoring

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSignalShaperProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	inRange := func(v float64) bool { return v >= 0 && v <= 100 }

	properties.Property("activity stays in [0,100]", prop.ForAll(
		func(txCount int) bool {
			return inRange(ActivityScore(txCount))
		},
		gen.IntRange(-1000, 1_000_000),
	))

	properties.Property("loyalty stays in [0,100]", prop.ForAll(
		func(txCount, counterparties int) bool {
			return inRange(LoyaltyScore(txCount, counterparties))
		},
		gen.IntRange(-10, 100_000),
		gen.IntRange(-10, 10_000),
	))

	properties.Property("hyper-concentrated loyalty never exceeds 40", prop.ForAll(
		func(txCount, counterparties int) bool {
			if counterparties >= 3 || counterparties == 0 {
				return true
			}
			if float64(txCount)/float64(counterparties) <= 20 {
				return true
			}
			return LoyaltyScore(txCount, counterparties) <= 40
		},
		gen.IntRange(2, 100_000),
		gen.IntRange(1, 2),
	))

	properties.Property("activity is monotone non-decreasing", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			return ActivityScore(a) <= ActivityScore(b)
		},
		gen.IntRange(0, 100_000),
		gen.IntRange(0, 100_000),
	))

	properties.Property("diversity is monotone non-decreasing", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			return DiversityScore(a) <= DiversityScore(b)
		},
		gen.IntRange(0, 10_000),
		gen.IntRange(0, 10_000),
	))

	properties.Property("age is monotone non-decreasing in days", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			older := now.Add(-time.Duration(b) * 24 * time.Hour)
			newer := now.Add(-time.Duration(a) * 24 * time.Hour)
			return AgeScore(newer, now) <= AgeScore(older, now)
		},
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2000),
	))

	properties.Property("recency is monotone non-increasing in staleness", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			fresher := now.Add(-time.Duration(a) * 24 * time.Hour)
			staler := now.Add(-time.Duration(b) * 24 * time.Hour)
			return RecencyScore(staler, now) <= RecencyScore(fresher, now)
		},
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2000),
	))

	properties.Property("composed score stays in [0,100]", prop.ForAll(
		func(txCount, counterparties, feedbackCount, volume, firstDays, lastDays int, avgFeedback float64, registered bool) bool {
			avg := avgFeedback
			bundle := &SignalBundle{
				TxCount:              txCount,
				FirstSeenAt:          now.Add(-time.Duration(firstDays) * 24 * time.Hour),
				LastSeenAt:           now.Add(-time.Duration(lastDays) * 24 * time.Hour),
				Counterparties:       counterparties,
				AvgFeedback:          &avg,
				FeedbackCount:        feedbackCount,
				TotalVolumeUSDC:      float64(volume),
				VolumeCounterparties: counterparties,
				IsRegistered:         registered,
			}
			result := Compute(bundle, now)
			return result.Score >= 0 && result.Score <= 100
		},
		gen.IntRange(0, 100_000),
		gen.IntRange(0, 10_000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 100_000_000),
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2000),
		gen.Float64Range(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
