// Package types provides common type definitions for the trust scanner system.
package types

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
)

// AllChains lists every supported chain in a stable order.
var AllChains = []ChainID{ChainEthereum, ChainBase, ChainArbitrum}

// WalletSource records which event family first surfaced a wallet
type WalletSource string

const (
	// SourceERC8004 marks wallets first seen via an identity registry mint
	SourceERC8004 WalletSource = "erc8004"
	// SourceX402 marks wallets first seen via a settled x402 payment
	SourceX402 WalletSource = "x402"
	// SourceBoth marks wallets observed under both event families
	SourceBoth WalletSource = "both"
)

// Promote merges a newly observed source into an existing one.
// The transition is one-way: erc8004|x402 -> both, never back.
func (s WalletSource) Promote(observed WalletSource) WalletSource {
	if s == "" {
		return observed
	}
	if s == observed || s == SourceBoth || observed == "" {
		return s
	}
	return SourceBoth
}

// WalletRole describes which side of payments a wallet has appeared on
type WalletRole string

const (
	// RoleBuyer marks wallets that only ever paid
	RoleBuyer WalletRole = "buyer"
	// RoleSeller marks wallets that only ever received
	RoleSeller WalletRole = "seller"
	// RoleBoth marks wallets that appeared on both sides
	RoleBoth WalletRole = "both"
)

// FeedbackSource records where a feedback row originated
type FeedbackSource string

const (
	// FeedbackFromChain marks feedback decoded from reputation registry events
	FeedbackFromChain FeedbackSource = "chain"
	// FeedbackFromAPI marks feedback submitted through the write API
	FeedbackFromAPI FeedbackSource = "api"
)

// WebhookEvent represents the kinds of score notifications a webhook can subscribe to
type WebhookEvent string

const (
	// EventScoreChange fires on any non-zero score delta
	EventScoreChange WebhookEvent = "score_change"
	// EventScoreDrop fires only on negative deltas
	EventScoreDrop WebhookEvent = "score_drop"
	// EventScoreRise fires only on positive deltas
	EventScoreRise WebhookEvent = "score_rise"
)

// APITier represents the service tier of an API key
type APITier string

const (
	// TierFree represents the free tier with a small daily quota
	TierFree APITier = "free"
	// TierPro represents the paid tier with a larger daily quota
	TierPro APITier = "pro"
)

// TrustTier is the human label for a score band. Derived, never stored.
type TrustTier string

const (
	TrustHigh    TrustTier = "HIGH"
	TrustMedium  TrustTier = "MEDIUM"
	TrustLow     TrustTier = "LOW"
	TrustMinimal TrustTier = "MINIMAL"
)

// TierForScore maps a trust score in [0,100] to its tier band.
func TierForScore(score int) TrustTier {
	switch {
	case score >= 80:
		return TrustHigh
	case score >= 50:
		return TrustMedium
	case score >= 20:
		return TrustLow
	default:
		return TrustMinimal
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
