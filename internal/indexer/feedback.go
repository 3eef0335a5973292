package indexer

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// FeedbackHandler decodes NewFeedback events on the ERC-8004 reputation
// registry into feedback rows. Rows are keyed (tx_hash, feedback_index)
// where the index is the log's position in its block, so one transaction
// can carry several attestations under distinct keys.
type FeedbackHandler struct {
	chain    types.ChainID
	registry common.Address
	feedback FeedbackStore
}

// NewFeedbackHandler creates a handler for one chain's reputation registry.
func NewFeedbackHandler(chain types.ChainID, registry common.Address, feedback FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{chain: chain, registry: registry, feedback: feedback}
}

// Query filters for NewFeedback events on the registry.
func (h *FeedbackHandler) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{h.registry},
		Topics:    [][]common.Hash{{newFeedbackTopic}},
	}
}

// HandleLogs decodes and persists each feedback event. Undecodable or
// unpersistable rows are logged and skipped.
func (h *FeedbackHandler) HandleLogs(ctx context.Context, logs []ethtypes.Log) (int, error) {
	logger := logging.FromContext(ctx).WithField("chain", string(h.chain))

	found := 0
	for i := range logs {
		log := &logs[i]

		decoded, err := decodeNewFeedback(log)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"txHash": log.TxHash.Hex(),
				"block":  log.BlockNumber,
			}).Error("failed to decode feedback event, skipping")
			continue
		}

		row := &models.Feedback{
			TxHash:        strings.ToLower(log.TxHash.Hex()),
			FeedbackIndex: log.Index,
			AgentID:       decoded.AgentID.Int64(),
			ClientAddress: strings.ToLower(decoded.ClientAddress.Hex()),
			Value:         decoded.Value,
			ValueDecimals: decoded.ValueDecimals,
			Tag1:          optional(decoded.Tag1),
			Tag2:          optional(decoded.Tag2),
			Endpoint:      optional(decoded.Endpoint),
			FeedbackURI:   optional(decoded.FeedbackURI),
			ContentHash:   decoded.ContentHash[:],
			Chain:         h.chain,
			BlockNumber:   log.BlockNumber,
			Source:        types.FeedbackFromChain,
		}

		inserted, err := h.feedback.Insert(ctx, row)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"txHash": row.TxHash,
				"index":  row.FeedbackIndex,
			}).Error("failed to persist feedback, skipping")
			continue
		}
		if inserted {
			found++
		}
	}
	return found, nil
}
