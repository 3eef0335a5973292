package indexer

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

type fakeWalletStore struct {
	observations []*storage.WalletObservation
}

func (f *fakeWalletStore) Observe(ctx context.Context, obs *storage.WalletObservation) error {
	f.observations = append(f.observations, obs)
	return nil
}

type fakeTransactionStore struct {
	rows      []*models.Transaction
	duplicate bool
}

func (f *fakeTransactionStore) Insert(ctx context.Context, tx *models.Transaction) (bool, error) {
	f.rows = append(f.rows, tx)
	return !f.duplicate, nil
}

type fakeFeedbackStore struct {
	rows []*models.Feedback
}

func (f *fakeFeedbackStore) Insert(ctx context.Context, fb *models.Feedback) (bool, error) {
	f.rows = append(f.rows, fb)
	return true, nil
}

var (
	testRegistry = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testUSDC     = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func mintLog(wallet common.Address, tokenID int64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Address: testRegistry,
		Topics: []common.Hash{
			transferTopic,
			zeroTopic,
			common.BytesToHash(wallet.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
		BlockNumber: block,
	}
}

func TestIdentityHandler_RecordsRegistrations(t *testing.T) {
	wallets := &fakeWalletStore{}
	handler := NewIdentityHandler(types.ChainBase, testRegistry, wallets)

	walletA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB := common.HexToAddress("0x2222222222222222222222222222222222222222")

	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{
		mintLog(walletA, 7, 100),
		mintLog(walletB, 8, 101),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, found)
	require.Len(t, wallets.observations, 2)

	obs := wallets.observations[0]
	assert.Equal(t, strings.ToLower(walletA.Hex()), obs.Address)
	assert.Equal(t, types.ChainBase, obs.Chain)
	assert.Equal(t, types.SourceERC8004, obs.Source)
	require.NotNil(t, obs.ERC8004ID)
	assert.Equal(t, int64(7), *obs.ERC8004ID)
	assert.Equal(t, 0, obs.TxDelta)
}

func TestIdentityHandler_DeduplicatesWithinBatch(t *testing.T) {
	wallets := &fakeWalletStore{}
	handler := NewIdentityHandler(types.ChainBase, testRegistry, wallets)

	wallet := common.HexToAddress("0x1111111111111111111111111111111111111111")

	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{
		mintLog(wallet, 7, 100),
		mintLog(wallet, 9, 105),
	})
	require.NoError(t, err)

	// First token id wins.
	assert.Equal(t, 1, found)
	require.Len(t, wallets.observations, 1)
	assert.Equal(t, int64(7), *wallets.observations[0].ERC8004ID)
}

func TestIdentityHandler_SkipsNonMintShapes(t *testing.T) {
	wallets := &fakeWalletStore{}
	handler := NewIdentityHandler(types.ChainBase, testRegistry, wallets)

	// An ERC-20 style Transfer has only three topics.
	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{{
		Address: testRegistry,
		Topics: []common.Hash{
			transferTopic,
			zeroTopic,
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, 0, found)
	assert.Empty(t, wallets.observations)
}

// fakeReceiptSource serves a canned receipt and a genuinely signed
// envelope so sender recovery works.
type fakeReceiptSource struct {
	receipt  *ethtypes.Receipt
	envelope *ethtypes.Transaction
}

func (f *fakeReceiptSource) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeReceiptSource) TransactionByHash(ctx context.Context, txHash common.Hash) (*ethtypes.Transaction, bool, error) {
	return f.envelope, false, nil
}

func signedEnvelope(t *testing.T) (*ethtypes.Transaction, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	signer := ethtypes.LatestSignerForChainID(big.NewInt(8453))
	tx, err := ethtypes.SignNewTx(key, signer, &ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &testUSDC,
	})
	require.NoError(t, err)
	return tx, sender
}

func transferReceiptLog(payer, recipient common.Address, amount *big.Int) *ethtypes.Log {
	return &ethtypes.Log{
		Address: testUSDC,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(payer.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func TestPaymentHandler_DecodesSettledPayment(t *testing.T) {
	envelope, facilitator := signedEnvelope(t)
	payer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")
	authorizer := common.HexToAddress("0x5555555555555555555555555555555555555555")

	source := &fakeReceiptSource{
		receipt: &ethtypes.Receipt{
			BlockNumber: big.NewInt(1234),
			Logs: []*ethtypes.Log{
				transferReceiptLog(payer, recipient, big.NewInt(1_000_000)),
			},
		},
		envelope: envelope,
	}

	wallets := &fakeWalletStore{}
	txs := &fakeTransactionStore{}
	handler := NewPaymentHandler(types.ChainBase, testUSDC, []string{facilitator}, source, wallets, txs)

	authLog := ethtypes.Log{
		Address: testUSDC,
		TxHash:  envelope.Hash(),
		Topics: []common.Hash{
			authorizationUsedTopic,
			common.BytesToHash(authorizer.Bytes()),
			common.HexToHash("0x01"),
		},
	}

	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{authLog})
	require.NoError(t, err)
	assert.Equal(t, 1, found)

	require.Len(t, txs.rows, 1)
	row := txs.rows[0]
	assert.Equal(t, strings.ToLower(envelope.Hash().Hex()), row.TxHash)
	assert.Equal(t, types.ChainBase, row.Chain)
	assert.Equal(t, uint64(1234), row.BlockNumber)
	assert.Equal(t, strings.ToLower(payer.Hex()), *row.Payer)
	assert.Equal(t, strings.ToLower(recipient.Hex()), *row.Recipient)
	assert.Equal(t, strings.ToLower(authorizer.Hex()), *row.Authorizer)
	assert.Equal(t, "1000000", row.AmountRaw)
	assert.True(t, row.AmountUSDC.Equal(decimal.RequireFromString("1")), "got %s", row.AmountUSDC)
	assert.Equal(t, facilitator, *row.Facilitator)
	assert.True(t, row.IsX402)

	// Both sides of the payment get a wallet observation with a tx_count
	// increment.
	require.Len(t, wallets.observations, 2)
	assert.Equal(t, strings.ToLower(payer.Hex()), wallets.observations[0].Address)
	assert.Equal(t, strings.ToLower(recipient.Hex()), wallets.observations[1].Address)
	for _, obs := range wallets.observations {
		assert.Equal(t, types.SourceX402, obs.Source)
		assert.Equal(t, 1, obs.TxDelta)
	}
}

func TestPaymentHandler_ReplayedRangeSkipsWalletCredit(t *testing.T) {
	envelope, _ := signedEnvelope(t)
	payer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")

	source := &fakeReceiptSource{
		receipt: &ethtypes.Receipt{
			BlockNumber: big.NewInt(1234),
			Logs: []*ethtypes.Log{
				transferReceiptLog(payer, recipient, big.NewInt(1_000_000)),
			},
		},
		envelope: envelope,
	}

	wallets := &fakeWalletStore{}
	txs := &fakeTransactionStore{duplicate: true}
	handler := NewPaymentHandler(types.ChainBase, testUSDC, nil, source, wallets, txs)

	authLog := ethtypes.Log{
		Address: testUSDC,
		TxHash:  envelope.Hash(),
		Topics: []common.Hash{
			authorizationUsedTopic,
			common.BytesToHash(payer.Bytes()),
			common.HexToHash("0x04"),
		},
	}

	// A rescanned range, as after a failed cursor commit, must not credit
	// tx_count again or mark the wallets dirty.
	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{authLog})
	require.NoError(t, err)
	assert.Equal(t, 0, found)
	assert.Empty(t, wallets.observations)
}

func TestPaymentHandler_UnknownFacilitator(t *testing.T) {
	envelope, _ := signedEnvelope(t)
	payer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")

	source := &fakeReceiptSource{
		receipt: &ethtypes.Receipt{
			BlockNumber: big.NewInt(1234),
			Logs: []*ethtypes.Log{
				transferReceiptLog(payer, recipient, big.NewInt(500_000)),
			},
		},
		envelope: envelope,
	}

	txs := &fakeTransactionStore{}
	handler := NewPaymentHandler(types.ChainBase, testUSDC, nil, source, &fakeWalletStore{}, txs)

	authLog := ethtypes.Log{
		Address: testUSDC,
		TxHash:  envelope.Hash(),
		Topics: []common.Hash{
			authorizationUsedTopic,
			common.BytesToHash(payer.Bytes()),
			common.HexToHash("0x02"),
		},
	}

	_, err := handler.HandleLogs(context.Background(), []ethtypes.Log{authLog})
	require.NoError(t, err)

	require.Len(t, txs.rows, 1)
	assert.False(t, txs.rows[0].IsX402)
}

func TestPaymentHandler_IgnoresForeignReceiptLogs(t *testing.T) {
	envelope, _ := signedEnvelope(t)
	payer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")

	otherToken := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	foreign := transferReceiptLog(payer, recipient, big.NewInt(99))
	foreign.Address = otherToken

	source := &fakeReceiptSource{
		receipt: &ethtypes.Receipt{
			BlockNumber: big.NewInt(1234),
			Logs:        []*ethtypes.Log{foreign},
		},
		envelope: envelope,
	}

	txs := &fakeTransactionStore{}
	handler := NewPaymentHandler(types.ChainBase, testUSDC, nil, source, &fakeWalletStore{}, txs)

	authLog := ethtypes.Log{
		Address: testUSDC,
		TxHash:  envelope.Hash(),
		Topics: []common.Hash{
			authorizationUsedTopic,
			common.BytesToHash(payer.Bytes()),
			common.HexToHash("0x03"),
		},
	}

	found, err := handler.HandleLogs(context.Background(), []ethtypes.Log{authLog})
	require.NoError(t, err)
	assert.Equal(t, 0, found)
	assert.Empty(t, txs.rows)
}

func TestScannerIDs(t *testing.T) {
	assert.Equal(t, "erc8004_identity_base", IdentityScannerID(types.ChainBase))
	assert.Equal(t, "erc8004_feedback_eth", FeedbackScannerID(types.ChainEthereum))
	assert.Equal(t, "x402_arb", PaymentScannerID(types.ChainArbitrum))
}
