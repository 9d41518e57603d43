package cowswap

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noctiluca-tools/pkg/types"
)

var (
	testWETH = types.Asset{ChainID: 8453, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	testUSDC = types.Asset{ChainID: 8453, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}

	testSigner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testReceiver = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func swapQuote(deadline time.Time) *types.Quote {
	return &types.Quote{
		Protocol:  types.ProtocolGaslessSwap,
		Source:    testWETH,
		Dest:      testUSDC,
		AmountIn:  big.NewInt(10_000_000_000_000_000),
		AmountOut: big.NewInt(25_000_000),
		Fee:       big.NewInt(0),
		Deadline:  deadline,
	}
}

func TestBuildCarriesQuoteAmounts(t *testing.T) {
	builder := NewBuilder(8453)
	quote := swapQuote(time.Now().Add(time.Hour))

	order, err := builder.Build(quote, testSigner, testReceiver)
	require.NoError(t, err)

	assert.Equal(t, 0, order.Quote.AmountIn.Cmp(quote.AmountIn))
	assert.Equal(t, 0, order.Quote.AmountOut.Cmp(quote.AmountOut))
	assert.Equal(t, testSigner, order.Signer)
	assert.Equal(t, testReceiver, order.Receiver)
	assert.NotEqual(t, [32]byte{}, order.Salt)
}

func TestBuildRejectsExpiredQuote(t *testing.T) {
	builder := NewBuilder(8453)
	quote := swapQuote(time.Now().Add(-time.Second))

	_, err := builder.Build(quote, testSigner, testReceiver)
	assert.ErrorIs(t, err, types.ErrQuoteExpired)
}

func TestBuildRejectsWrongProtocol(t *testing.T) {
	builder := NewBuilder(8453)
	quote := swapQuote(time.Now().Add(time.Hour))
	quote.Protocol = types.ProtocolBridge

	_, err := builder.Build(quote, testSigner, testReceiver)
	assert.ErrorIs(t, err, types.ErrUnsupportedProtocol)
}

func TestBuildMintsUniqueSalts(t *testing.T) {
	builder := NewBuilder(8453)
	quote := swapQuote(time.Now().Add(time.Hour))

	seen := make(map[[32]byte]bool)
	for i := 0; i < 100; i++ {
		order, err := builder.Build(quote, testSigner, testReceiver)
		require.NoError(t, err)
		require.False(t, seen[order.Salt], "orders with identical parameters must not share a salt")
		seen[order.Salt] = true
	}
}

func TestTypedDataMatchesOrder(t *testing.T) {
	builder := NewBuilder(8453)
	deadline := time.Now().Add(time.Hour).Truncate(time.Second)
	quote := swapQuote(deadline)

	order, err := builder.Build(quote, testSigner, testReceiver)
	require.NoError(t, err)

	data := builder.TypedData(order)
	assert.Equal(t, "Order", data.PrimaryType)
	assert.Equal(t, "Gnosis Protocol", data.Domain.Name)
	assert.Equal(t, "v2", data.Domain.Version)
	assert.Equal(t, SettlementContract.Hex(), data.Domain.VerifyingContract)

	msg := data.Message
	assert.Equal(t, testWETH.Address.Hex(), msg["sellToken"])
	assert.Equal(t, testUSDC.Address.Hex(), msg["buyToken"])
	assert.Equal(t, testReceiver.Hex(), msg["receiver"])
	assert.Equal(t, quote.AmountIn.String(), msg["sellAmount"])
	assert.Equal(t, quote.AmountOut.String(), msg["buyAmount"])
	assert.Equal(t, hexutil.Encode(order.Salt[:]), msg["appData"])
	assert.Equal(t, "0", msg["feeAmount"])
	assert.Equal(t, "sell", msg["kind"])
	assert.Equal(t, false, msg["partiallyFillable"])
	assert.Equal(t, "erc20", msg["sellTokenBalance"])
	assert.Equal(t, "erc20", msg["buyTokenBalance"])
}
