package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

func int64Ptr(v int64) *int64 { return &v }

func testSignals() *Signals {
	return &Signals{
		counterparties: map[string]int{
			"0xaaa": 5,
		},
		volume: map[string]storage.VolumeStat{
			"0xaaa": {TotalUSDC: decimal.RequireFromString("1000"), Counterparties: 5},
		},
		roles: map[string]storage.RoleStat{
			"0xaaa": {Payer: true, Recipient: false},
			"0xbbb": {Payer: true, Recipient: true},
			"0xccc": {Payer: false, Recipient: true},
		},
		feedback: map[int64]storage.FeedbackStat{
			42: {Count: 10, AvgValue: decimal.RequireFromString("4.0")},
		},
	}
}

func TestSignals_BundleFor(t *testing.T) {
	now := time.Now().UTC()
	wallet := &models.Wallet{
		Address:     "0xaaa",
		TxCount:     10,
		FirstSeenAt: now.Add(-90 * 24 * time.Hour),
		LastSeenAt:  now.Add(-24 * time.Hour),
		ERC8004ID:   int64Ptr(42),
	}

	bundle := testSignals().BundleFor(wallet)

	assert.Equal(t, 10, bundle.TxCount)
	assert.Equal(t, 5, bundle.Counterparties)
	assert.Equal(t, 1000.0, bundle.TotalVolumeUSDC)
	assert.Equal(t, 5, bundle.VolumeCounterparties)
	assert.True(t, bundle.IsRegistered)
	require.NotNil(t, bundle.AvgFeedback)
	assert.Equal(t, 4.0, *bundle.AvgFeedback)
	assert.Equal(t, 10, bundle.FeedbackCount)
}

func TestSignals_BundleFor_UnregisteredWalletHasNoFeedback(t *testing.T) {
	wallet := &models.Wallet{Address: "0xaaa", TxCount: 3}

	bundle := testSignals().BundleFor(wallet)

	assert.False(t, bundle.IsRegistered)
	assert.Nil(t, bundle.AvgFeedback)
	assert.Equal(t, 0, bundle.FeedbackCount)
}

func TestSignals_BundleFor_UnknownWalletIsZero(t *testing.T) {
	wallet := &models.Wallet{Address: "0xzzz", TxCount: 1}

	bundle := testSignals().BundleFor(wallet)

	assert.Equal(t, 0, bundle.Counterparties)
	assert.Equal(t, 0.0, bundle.TotalVolumeUSDC)
}

func TestSignals_RoleFor(t *testing.T) {
	signals := testSignals()

	role := signals.RoleFor("0xaaa")
	require.NotNil(t, role)
	assert.Equal(t, types.RoleBuyer, *role)

	role = signals.RoleFor("0xbbb")
	require.NotNil(t, role)
	assert.Equal(t, types.RoleBoth, *role)

	role = signals.RoleFor("0xccc")
	require.NotNil(t, role)
	assert.Equal(t, types.RoleSeller, *role)

	assert.Nil(t, signals.RoleFor("0xzzz"))
}
