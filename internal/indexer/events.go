package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Event signatures the scanners filter on.
var (
	// transferTopic is the ERC-20/ERC-721 Transfer signature hash.
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// authorizationUsedTopic is the EIP-3009 AuthorizationUsed signature
	// hash, emitted by USDC when a transferWithAuthorization settles.
	authorizationUsedTopic = crypto.Keccak256Hash([]byte("AuthorizationUsed(address,bytes32)"))

	// newFeedbackTopic is the reputation registry's NewFeedback signature
	// hash.
	newFeedbackTopic = crypto.Keccak256Hash([]byte("NewFeedback(uint256,address,int128,uint8,string,string,string,string,bytes32)"))

	zeroTopic = common.Hash{}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// feedbackDataArgs describes the non-indexed payload of NewFeedback.
var feedbackDataArgs = abi.Arguments{
	{Name: "value", Type: mustNewType("int128")},
	{Name: "valueDecimals", Type: mustNewType("uint8")},
	{Name: "tag1", Type: mustNewType("string")},
	{Name: "tag2", Type: mustNewType("string")},
	{Name: "endpoint", Type: mustNewType("string")},
	{Name: "feedbackURI", Type: mustNewType("string")},
	{Name: "contentHash", Type: mustNewType("bytes32")},
}

// decodedFeedback is one unpacked NewFeedback event.
type decodedFeedback struct {
	AgentID       *big.Int
	ClientAddress common.Address
	Value         decimal.Decimal
	ValueDecimals int
	Tag1          string
	Tag2          string
	Endpoint      string
	FeedbackURI   string
	ContentHash   [32]byte
}

// decodeNewFeedback unpacks a NewFeedback log. The agent id and client
// address ride in topics; everything else is ABI-encoded data.
func decodeNewFeedback(log *ethtypes.Log) (*decodedFeedback, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}

	values, err := feedbackDataArgs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	if len(values) != len(feedbackDataArgs) {
		return nil, fmt.Errorf("expected %d data fields, got %d", len(feedbackDataArgs), len(values))
	}

	rawValue, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for value", values[0])
	}
	valueDecimals, ok := values[1].(uint8)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for valueDecimals", values[1])
	}
	contentHash, ok := values[6].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for contentHash", values[6])
	}

	return &decodedFeedback{
		AgentID:       new(big.Int).SetBytes(log.Topics[1].Bytes()),
		ClientAddress: common.BytesToAddress(log.Topics[2].Bytes()),
		Value:         decimal.NewFromBigInt(rawValue, -int32(valueDecimals)),
		ValueDecimals: int(valueDecimals),
		Tag1:          values[2].(string),
		Tag2:          values[3].(string),
		Endpoint:      values[4].(string),
		FeedbackURI:   values[5].(string),
		ContentHash:   contentHash,
	}, nil
}

// usdcDecimals is the exponent USDC uses on every supported chain.
const usdcDecimals = 6

// usdcAmount converts a raw USDC transfer amount to its decimal value.
func usdcAmount(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -usdcDecimals)
}

// optional returns a pointer to s, or nil when s is empty. Empty event
// strings persist as NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
