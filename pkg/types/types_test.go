package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementStateTerminal(t *testing.T) {
	terminal := []SettlementState{StateFilled, StateConfirmed, StateExpired, StateCancelled, StateRejected, StateReverted}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "state %s should be terminal", s)
	}

	open := []SettlementState{StateBuilt, StateSubmitted, StatePending, StatePartiallyFilled}
	for _, s := range open {
		assert.False(t, s.Terminal(), "state %s should not be terminal", s)
	}
}

func TestSettlementStateSuccess(t *testing.T) {
	assert.True(t, StateFilled.Success())
	assert.True(t, StateConfirmed.Success())

	assert.False(t, StateExpired.Success())
	assert.False(t, StateCancelled.Success())
	assert.False(t, StateRejected.Success())
	assert.False(t, StateReverted.Success())
	assert.False(t, StatePending.Success())
}

func TestAssetFormatAndParse(t *testing.T) {
	usdc := Asset{ChainID: 8453, Symbol: "USDC", Decimals: 6}

	amount, err := usdc.Parse("25.5")
	require.NoError(t, err)
	assert.Equal(t, "25500000", amount.String())
	assert.Equal(t, "25.500000", usdc.Format(amount))

	weth := Asset{ChainID: 8453, Symbol: "WETH", Decimals: 18}
	amount, err = weth.Parse("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", amount.String())

	_, err = usdc.Parse("not-a-number")
	assert.Error(t, err)
	_, err = usdc.Parse("-1")
	assert.Error(t, err)
	_, err = usdc.Parse("")
	assert.Error(t, err)

	assert.Equal(t, "0", usdc.Format(nil))
}

func TestAssetParseIsExact(t *testing.T) {
	weth := Asset{ChainID: 8453, Symbol: "WETH", Decimals: 18}

	// Values near float rounding boundaries must scale exactly.
	cases := map[string]string{
		"0.001":                "1000000000000000",
		"0.1":                  "100000000000000000",
		"2.5":                  "2500000000000000000",
		"0.000000000000000001": "1",
		"1.000000000000000001": "1000000000000000001",
		".5":                   "500000000000000000",
		"3.":                   "3000000000000000000",
	}
	for in, want := range cases {
		amount, err := weth.Parse(in)
		require.NoError(t, err, "parse %s", in)
		assert.Equal(t, want, amount.String(), "parse %s", in)
	}

	// More fractional digits than the asset carries is an error, not a
	// silent truncation.
	usdc := Asset{ChainID: 8453, Symbol: "USDC", Decimals: 6}
	_, err := usdc.Parse("1.0000001")
	assert.Error(t, err)
}

func TestAssetKey(t *testing.T) {
	native := Asset{ChainID: 8453, Native: true}
	assert.Equal(t, "8453:native", native.Key())

	token := Asset{ChainID: 8453, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")}
	assert.Equal(t, "8453:0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", token.Key())
}

func TestQuoteExpiry(t *testing.T) {
	now := time.Now()
	quote := &Quote{
		Protocol:  ProtocolGaslessSwap,
		AmountIn:  big.NewInt(100),
		AmountOut: big.NewInt(99),
		Fee:       big.NewInt(0),
		Deadline:  now.Add(time.Minute),
	}

	assert.False(t, quote.Expired(now))
	assert.True(t, quote.Expired(now.Add(time.Minute)))
	assert.True(t, quote.Expired(now.Add(2*time.Minute)))
	require.NoError(t, quote.Validate(now))

	stale := *quote
	stale.Deadline = now.Add(-time.Second)
	assert.Error(t, stale.Validate(now))

	empty := *quote
	empty.AmountOut = big.NewInt(0)
	assert.Error(t, empty.Validate(now))
}

func TestTransientErrors(t *testing.T) {
	base := errors.New("connection reset")
	err := Transient("quote request", base)

	assert.True(t, IsTransient(err))
	assert.True(t, IsTransient(fmt.Errorf("outer: %w", err)))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "quote request")

	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(ErrNoLiquidity))
	assert.False(t, IsTransient(nil))
}

func TestNewSaltUniqueness(t *testing.T) {
	seen := make(map[[32]byte]bool)
	for i := 0; i < 10000; i++ {
		salt, err := NewSalt()
		require.NoError(t, err)
		require.False(t, seen[salt], "salt collision after %d draws", i)
		seen[salt] = true
	}
}
