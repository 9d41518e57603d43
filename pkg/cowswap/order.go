package cowswap

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"noctiluca-tools/pkg/types"
)

// Builder turns normalized gasless-swap quotes into unsigned orders matching
// the settlement contract's canonical EIP-712 schema.
type Builder struct {
	chainID    uint64
	settlement common.Address
	now        func() time.Time
}

// NewBuilder creates a builder for the given chain.
func NewBuilder(chainID uint64) *Builder {
	return &Builder{
		chainID:    chainID,
		settlement: SettlementContract,
		now:        time.Now,
	}
}

// Build derives an unsigned order from a valid, non-expired quote. Amounts
// are carried over from the quote unchanged; a fresh 256-bit salt makes the
// order unique per signer (it travels in the appData field). Pure: no side
// effects beyond reading the clock and the salt source.
func (b *Builder) Build(quote *types.Quote, signer, receiver common.Address) (*types.Order, error) {
	if quote.Protocol != types.ProtocolGaslessSwap {
		return nil, fmt.Errorf("builder cannot handle %q orders: %w", quote.Protocol, types.ErrUnsupportedProtocol)
	}
	if quote.Expired(b.now()) {
		return nil, fmt.Errorf("quote deadline %s: %w", quote.Deadline.Format(time.RFC3339), types.ErrQuoteExpired)
	}
	if quote.AmountIn.Sign() <= 0 || quote.AmountOut.Sign() <= 0 {
		return nil, fmt.Errorf("order amounts must be positive")
	}

	salt, err := types.NewSalt()
	if err != nil {
		return nil, err
	}

	return &types.Order{
		Quote:    *quote,
		Signer:   signer,
		Receiver: receiver,
		Salt:     salt,
	}, nil
}

// TypedData returns the EIP-712 structured message the settlement contract
// verifies for the order. Field names, order, and types are fixed by the
// protocol.
func (b *Builder) TypedData(order *types.Order) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "sellToken", Type: "address"},
				{Name: "buyToken", Type: "address"},
				{Name: "receiver", Type: "address"},
				{Name: "sellAmount", Type: "uint256"},
				{Name: "buyAmount", Type: "uint256"},
				{Name: "validTo", Type: "uint32"},
				{Name: "appData", Type: "bytes32"},
				{Name: "feeAmount", Type: "uint256"},
				{Name: "kind", Type: "string"},
				{Name: "partiallyFillable", Type: "bool"},
				{Name: "sellTokenBalance", Type: "string"},
				{Name: "buyTokenBalance", Type: "string"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Gnosis Protocol",
			Version:           "v2",
			ChainId:           math.NewHexOrDecimal256(int64(b.chainID)),
			VerifyingContract: b.settlement.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sellToken":         order.Quote.Source.Address.Hex(),
			"buyToken":          order.Quote.Dest.Address.Hex(),
			"receiver":          order.Receiver.Hex(),
			"sellAmount":        order.Quote.AmountIn.String(),
			"buyAmount":         order.Quote.AmountOut.String(),
			"validTo":           itoa(uint32(order.Quote.Deadline.Unix())),
			"appData":           hexutil.Encode(order.Salt[:]),
			"feeAmount":         order.Quote.Fee.String(),
			"kind":              "sell",
			"partiallyFillable": false,
			"sellTokenBalance":  "erc20",
			"buyTokenBalance":   "erc20",
		},
	}
}

// zero is shared by partial-fill detection; the orderbook reports executed
// amounts as decimal strings.
var zero = big.NewInt(0)
