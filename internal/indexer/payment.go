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
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

// PaymentHandler decodes settled x402 USDC payments. The scan anchors on
// AuthorizationUsed events emitted by the USDC contract, then pulls the
// receipt and envelope of each matching transaction exactly once to
// extract the actual Transfer amounts and the submitting facilitator.
type PaymentHandler struct {
	chain        types.ChainID
	usdc         common.Address
	facilitators map[string]bool
	source       paymentSource
	wallets      WalletStore
	txs          TransactionStore
}

// NewPaymentHandler creates a handler for one chain's USDC contract.
// Facilitator addresses identify payments settled through a known x402
// facilitator; the source serves the receipt and envelope fetches.
func NewPaymentHandler(chain types.ChainID, usdc common.Address, facilitators []string, source paymentSource, wallets WalletStore, txs TransactionStore) *PaymentHandler {
	known := make(map[string]bool, len(facilitators))
	for _, f := range facilitators {
		known[strings.ToLower(f)] = true
	}
	return &PaymentHandler{
		chain:        chain,
		usdc:         usdc,
		facilitators: known,
		source:       source,
		wallets:      wallets,
		txs:          txs,
	}
}

// Query filters for AuthorizationUsed events on the USDC contract.
func (h *PaymentHandler) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{h.usdc},
		Topics:    [][]common.Hash{{authorizationUsedTopic}},
	}
}

// paymentSource is the extra RPC surface the payment handler needs beyond
// the shared filter scan.
type paymentSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error)
}

// HandleLogs resolves each distinct transaction behind the batch's
// AuthorizationUsed events and persists its USDC transfers. Receipt and
// envelope fetch failures abort the batch; per-row persistence failures
// are logged and skipped.
func (h *PaymentHandler) HandleLogs(ctx context.Context, logs []ethtypes.Log) (int, error) {
	logger := logging.FromContext(ctx).WithField("chain", string(h.chain))

	// One transaction may emit several AuthorizationUsed events. Fetch its
	// receipt once, and remember the first authorizer for attribution.
	var order []common.Hash
	authorizers := make(map[common.Hash]string)
	for i := range logs {
		log := &logs[i]
		if len(log.Topics) != 3 {
			continue
		}
		if _, ok := authorizers[log.TxHash]; ok {
			continue
		}
		order = append(order, log.TxHash)
		authorizers[log.TxHash] = strings.ToLower(common.BytesToAddress(log.Topics[1].Bytes()).Hex())
	}

	found := 0
	for _, txHash := range order {
		n, err := h.handleTransaction(ctx, logger, txHash, authorizers[txHash])
		if err != nil {
			return found, err
		}
		found += n
	}
	return found, nil
}

func (h *PaymentHandler) handleTransaction(ctx context.Context, logger *logging.Logger, txHash common.Hash, authorizer string) (int, error) {
	receipt, err := h.source.TransactionReceipt(ctx, txHash)
	if err != nil {
		return 0, err
	}

	envelope, pending, err := h.source.TransactionByHash(ctx, txHash)
	if err != nil {
		return 0, err
	}
	if pending {
		logger.WithField("txHash", txHash.Hex()).Warn("transaction still pending, skipping")
		return 0, nil
	}

	facilitator, err := senderOf(envelope)
	if err != nil {
		logger.WithError(err).WithField("txHash", txHash.Hex()).Error("failed to recover transaction sender, skipping")
		return 0, nil
	}
	isX402 := h.facilitators[facilitator]

	now := time.Now().UTC()
	found := 0
	for _, log := range receipt.Logs {
		if log.Address != h.usdc || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}

		payer := strings.ToLower(common.BytesToAddress(log.Topics[1].Bytes()).Hex())
		recipient := strings.ToLower(common.BytesToAddress(log.Topics[2].Bytes()).Hex())
		amount := new(big.Int).SetBytes(log.Data)

		auth := authorizer
		if auth == "" {
			auth = payer
		}

		row := &models.Transaction{
			TxHash:      strings.ToLower(txHash.Hex()),
			Chain:       h.chain,
			BlockNumber: receipt.BlockNumber.Uint64(),
			Authorizer:  &auth,
			Payer:       &payer,
			Recipient:   &recipient,
			AmountRaw:   amount.String(),
			AmountUSDC:  usdcAmount(amount),
			Facilitator: &facilitator,
			IsX402:      isX402,
		}
		inserted, err := h.txs.Insert(ctx, row)
		if err != nil {
			logger.WithError(err).WithField("txHash", row.TxHash).Error("failed to persist payment, skipping")
			continue
		}
		if !inserted {
			// Replay of an already indexed range. The wallets were credited
			// when the row was first written.
			continue
		}

		for _, address := range []string{payer, recipient} {
			obs := &storage.WalletObservation{
				Address: address,
				Chain:   h.chain,
				Source:  types.SourceX402,
				SeenAt:  now,
				TxDelta: 1,
			}
			if err := h.wallets.Observe(ctx, obs); err != nil {
				logger.WithError(err).WithField("wallet", address).Error("failed to record payment wallet, skipping")
			}
		}
		found++
	}
	return found, nil
}

// senderOf recovers the from address of a transaction envelope.
func senderOf(tx *ethtypes.Transaction) (string, error) {
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", err
	}
	return strings.ToLower(from.Hex()), nil
}
