package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-scanner/internal/types"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/trust"},
		RPC: RPCConfig{
			URLTemplate: "https://%s.g.alchemy.com/v2/%s",
			APIKey:      "test-key",
		},
		Budget:  BudgetConfig{MonthlyCU: 30_000_000},
		Indexer: IndexerConfig{BatchSize: MaxLogWindow},
		Chains:  loadChainConfigs(),
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RequiredValues(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RPC.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RPC.URLTemplate = "https://rpc.example.com/fixed"
	assert.Error(t, cfg.Validate())
}

func TestValidate_BatchSizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Indexer.BatchSize = 0
	assert.Error(t, cfg.Validate())

	// The free-tier provider rejects windows over 10 blocks; configuring
	// one is a terminal error, not something to clamp silently.
	cfg = validConfig()
	cfg.Indexer.BatchSize = MaxLogWindow + 1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Indexer.BatchSize = 5
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BudgetMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Budget.MonthlyCU = 0
	assert.Error(t, cfg.Validate())
}

func TestRPCURL(t *testing.T) {
	cfg := validConfig()

	url, err := cfg.RPCURL(types.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, "https://base-mainnet.g.alchemy.com/v2/test-key", url)

	_, err = cfg.RPCURL(types.ChainID("solana"))
	assert.Error(t, err)
}

func TestLoadChainConfigs_Defaults(t *testing.T) {
	chains := loadChainConfigs()
	require.Len(t, chains, 3)

	base := chains[types.ChainBase]
	assert.Equal(t, "base-mainnet", base.NetworkSlug)
	assert.Equal(t, "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", base.USDCAddress)
	assert.Equal(t, 2*time.Second, base.AvgBlockTime)

	arb := chains[types.ChainArbitrum]
	assert.Equal(t, 50*time.Millisecond, arb.Pacing)
}

func TestLoadChainConfigs_EnvOverrides(t *testing.T) {
	t.Setenv("BASE_IDENTITY_REGISTRY", "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	t.Setenv("BASE_FACILITATORS", "0xFF00000000000000000000000000000000000001, 0xff00000000000000000000000000000000000002")
	t.Setenv("BASE_PAYMENT_GENESIS", "123456")

	chains := loadChainConfigs()
	base := chains[types.ChainBase]

	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", base.IdentityRegistry)
	assert.Equal(t, []string{
		"0xff00000000000000000000000000000000000001",
		"0xff00000000000000000000000000000000000002",
	}, base.Facilitators)
	assert.Equal(t, uint64(123456), base.PaymentGenesis)
}
