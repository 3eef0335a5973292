// Package config provides configuration management for the trust scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/trust-scanner/internal/types"
)

// MaxLogWindow is the hard per-call eth_getLogs window imposed by the
// free-tier RPC provider. Configuring a larger batch is a terminal error.
const MaxLogWindow = 10

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	RPC      RPCConfig
	Budget   BudgetConfig
	Chains   map[types.ChainID]ChainConfig
	Indexer  IndexerConfig
	Webhook  WebhookConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// RPCConfig holds the RPC provider configuration. URLTemplate takes the
// per-chain network slug and the API key, in that order.
type RPCConfig struct {
	URLTemplate string
	APIKey      string
	CallTimeout time.Duration
}

// BudgetConfig holds the monthly compute-unit budget
type BudgetConfig struct {
	MonthlyCU         int64
	DefaultMethodCost int
}

// ChainConfig holds per-chain configuration
type ChainConfig struct {
	NetworkSlug        string
	Pacing             time.Duration
	AvgBlockTime       time.Duration
	USDCAddress        string
	IdentityRegistry   string
	ReputationRegistry string
	Facilitators       []string
	IdentityGenesis    uint64
	FeedbackGenesis    uint64
	PaymentGenesis     uint64
}

// IndexerConfig holds scanner configuration
type IndexerConfig struct {
	BatchSize int
}

// WebhookConfig holds dispatcher configuration
type WebhookConfig struct {
	Timeout     time.Duration
	MaxFailures int
}

// ServerConfig holds the listen port for the optional read API
type ServerConfig struct {
	Port string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// chainDefaults carries the built-in per-chain values. Registry addresses
// and genesis blocks have no universal defaults and come from env.
var chainDefaults = map[types.ChainID]ChainConfig{
	types.ChainEthereum: {
		NetworkSlug:  "eth-mainnet",
		Pacing:       100 * time.Millisecond,
		AvgBlockTime: 12 * time.Second,
		USDCAddress:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	},
	types.ChainBase: {
		NetworkSlug:  "base-mainnet",
		Pacing:       100 * time.Millisecond,
		AvgBlockTime: 2 * time.Second,
		USDCAddress:  "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
	},
	types.ChainArbitrum: {
		NetworkSlug:  "arb-mainnet",
		Pacing:       50 * time.Millisecond,
		AvgBlockTime: 250 * time.Millisecond,
		USDCAddress:  "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
	},
}

// Load loads configuration from .env file and environment variables.
// Missing required values abort at startup.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
		},
		RPC: RPCConfig{
			URLTemplate: getEnv("RPC_URL_TEMPLATE", "https://%s.g.alchemy.com/v2/%s"),
			APIKey:      getEnv("RPC_API_KEY", ""),
			CallTimeout: getEnvAsDuration("RPC_CALL_TIMEOUT", 30*time.Second),
		},
		Budget: BudgetConfig{
			MonthlyCU:         int64(getEnvAsInt("CU_MONTHLY_BUDGET", 30_000_000)),
			DefaultMethodCost: getEnvAsInt("CU_DEFAULT_METHOD_COST", 20),
		},
		Indexer: IndexerConfig{
			BatchSize: getEnvAsInt("INDEXER_BATCH_SIZE", MaxLogWindow),
		},
		Webhook: WebhookConfig{
			Timeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxFailures: getEnvAsInt("WEBHOOK_MAX_FAILURES", 5),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	cfg.Chains = loadChainConfigs()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on missing required values or invalid batch sizes.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RPC.APIKey == "" {
		return fmt.Errorf("RPC_API_KEY is required")
	}
	if !strings.Contains(c.RPC.URLTemplate, "%s") {
		return fmt.Errorf("RPC_URL_TEMPLATE must contain %%s placeholders")
	}
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("INDEXER_BATCH_SIZE must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.BatchSize > MaxLogWindow {
		return fmt.Errorf("INDEXER_BATCH_SIZE %d exceeds the provider log window of %d blocks", c.Indexer.BatchSize, MaxLogWindow)
	}
	if c.Budget.MonthlyCU <= 0 {
		return fmt.Errorf("CU_MONTHLY_BUDGET must be positive")
	}
	return nil
}

// RPCURL returns the full endpoint URL for a chain.
func (c *Config) RPCURL(chain types.ChainID) (string, error) {
	cc, ok := c.Chains[chain]
	if !ok {
		return "", fmt.Errorf("unknown chain: %s", chain)
	}
	return fmt.Sprintf(c.RPC.URLTemplate, cc.NetworkSlug, c.RPC.APIKey), nil
}

func loadChainConfigs() map[types.ChainID]ChainConfig {
	chains := make(map[types.ChainID]ChainConfig, len(chainDefaults))
	for _, chain := range types.AllChains {
		def := chainDefaults[chain]
		prefix := strings.ToUpper(string(chain))

		cc := ChainConfig{
			NetworkSlug:        getEnv(prefix+"_NETWORK_SLUG", def.NetworkSlug),
			Pacing:             getEnvAsDuration(prefix+"_PACING", def.Pacing),
			AvgBlockTime:       getEnvAsDuration(prefix+"_AVG_BLOCK_TIME", def.AvgBlockTime),
			USDCAddress:        strings.ToLower(getEnv(prefix+"_USDC_ADDRESS", def.USDCAddress)),
			IdentityRegistry:   strings.ToLower(getEnv(prefix+"_IDENTITY_REGISTRY", "")),
			ReputationRegistry: strings.ToLower(getEnv(prefix+"_REPUTATION_REGISTRY", "")),
			IdentityGenesis:    getEnvAsUint64(prefix+"_IDENTITY_GENESIS", 0),
			FeedbackGenesis:    getEnvAsUint64(prefix+"_FEEDBACK_GENESIS", 0),
			PaymentGenesis:     getEnvAsUint64(prefix+"_PAYMENT_GENESIS", 0),
		}

		for _, f := range strings.Split(getEnv(prefix+"_FACILITATORS", ""), ",") {
			f = strings.ToLower(strings.TrimSpace(f))
			if f != "" {
				cc.Facilitators = append(cc.Facilitators, f)
			}
		}

		chains[chain] = cc
	}
	return chains
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsUint64 gets an environment variable as a uint64 with a default value
func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
