package indexer

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

// IdentityHandler decodes agent registrations on the ERC-8004 identity
// registry. A registration is an ERC-721 Transfer mint: from is the zero
// address, to is the agent wallet, and the token id is the agent id.
type IdentityHandler struct {
	chain    types.ChainID
	registry common.Address
	wallets  WalletStore
}

// NewIdentityHandler creates a handler for one chain's identity registry.
func NewIdentityHandler(chain types.ChainID, registry common.Address, wallets WalletStore) *IdentityHandler {
	return &IdentityHandler{chain: chain, registry: registry, wallets: wallets}
}

// Query filters for Transfer events from the zero address on the registry.
func (h *IdentityHandler) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{h.registry},
		Topics:    [][]common.Hash{{transferTopic}, {zeroTopic}},
	}
}

// HandleLogs records one wallet observation per distinct minted-to address
// in the batch, keeping the first token id seen for each.
func (h *IdentityHandler) HandleLogs(ctx context.Context, logs []ethtypes.Log) (int, error) {
	logger := logging.FromContext(ctx).WithField("chain", string(h.chain))
	now := time.Now().UTC()

	seen := make(map[string]bool)
	found := 0
	for i := range logs {
		log := &logs[i]
		// ERC-721 mints carry an indexed token id as the fourth topic.
		// ERC-20 Transfers on the same signature only have three; skip them.
		if len(log.Topics) != 4 {
			continue
		}

		wallet := strings.ToLower(common.BytesToAddress(log.Topics[2].Bytes()).Hex())
		if seen[wallet] {
			continue
		}
		seen[wallet] = true

		agentID := new(big.Int).SetBytes(log.Topics[3].Bytes()).Int64()
		obs := &storage.WalletObservation{
			Address:   wallet,
			Chain:     h.chain,
			Source:    types.SourceERC8004,
			ERC8004ID: &agentID,
			SeenAt:    now,
		}
		if err := h.wallets.Observe(ctx, obs); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"wallet": wallet,
				"block":  log.BlockNumber,
			}).Error("failed to record registration, skipping")
			continue
		}
		found++
	}
	return found, nil
}
