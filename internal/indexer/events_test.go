package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewFeedback(t *testing.T) {
	agentID := big.NewInt(42)
	client := common.HexToAddress("0x1111111111111111111111111111111111111111")
	contentHash := [32]byte{0xde, 0xad, 0xbe, 0xef}

	data, err := feedbackDataArgs.Pack(
		big.NewInt(45), uint8(1),
		"quality", "speed", "/v1/chat", "ipfs://feedback", contentHash)
	require.NoError(t, err)

	log := &ethtypes.Log{
		Topics: []common.Hash{
			newFeedbackTopic,
			common.BigToHash(agentID),
			common.BytesToHash(client.Bytes()),
		},
		Data: data,
	}

	decoded, err := decodeNewFeedback(log)
	require.NoError(t, err)

	assert.Equal(t, int64(42), decoded.AgentID.Int64())
	assert.Equal(t, client, decoded.ClientAddress)
	// value 45 with one decimal is 4.5.
	assert.True(t, decoded.Value.Equal(decimal.RequireFromString("4.5")), "got %s", decoded.Value)
	assert.Equal(t, 1, decoded.ValueDecimals)
	assert.Equal(t, "quality", decoded.Tag1)
	assert.Equal(t, "speed", decoded.Tag2)
	assert.Equal(t, "/v1/chat", decoded.Endpoint)
	assert.Equal(t, "ipfs://feedback", decoded.FeedbackURI)
	assert.Equal(t, contentHash, decoded.ContentHash)
}

func TestDecodeNewFeedback_WrongTopicCount(t *testing.T) {
	_, err := decodeNewFeedback(&ethtypes.Log{Topics: []common.Hash{newFeedbackTopic}})
	assert.Error(t, err)
}

func TestDecodeNewFeedback_MalformedData(t *testing.T) {
	log := &ethtypes.Log{
		Topics: []common.Hash{newFeedbackTopic, {}, {}},
		Data:   []byte{0x01, 0x02},
	}
	_, err := decodeNewFeedback(log)
	assert.Error(t, err)
}

func TestUSDCAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		expected string
	}{
		{"one usdc", big.NewInt(1_000_000), "1"},
		{"fractional", big.NewInt(1_500_000), "1.5"},
		{"sub-cent", big.NewInt(1), "0.000001"},
		{"zero", big.NewInt(0), "0"},
		{"large", new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(2_500_000)), "2500000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, usdcAmount(tt.raw).Equal(decimal.RequireFromString(tt.expected)),
				"got %s, want %s", usdcAmount(tt.raw), tt.expected)
		})
	}
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	require.NotNil(t, optional("tag"))
	assert.Equal(t, "tag", *optional("tag"))
}
