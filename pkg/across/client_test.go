package across

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noctiluca-tools/pkg/types"
)

var (
	testBaseUSDC    = types.Asset{ChainID: 8453, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}
	testPolygonUSDC = types.Asset{ChainID: 137, Address: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), Symbol: "USDC", Decimals: 6}

	testDepositor = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

const testQuoteBody = `{
	"expectedOutput": "24900000",
	"approvalTxns": [
		{"to": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		 "data": "0x095ea7b3000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa00000000000000000000000000000000000000000000000000000000017d7840"}
	],
	"swapTx": {"to": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB", "data": "0xdeadbeef", "value": "0"}
}`

func TestGetQuoteNormalizesResponse(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap/approval", r.URL.Path)
		query = r.URL.Query()
		fmt.Fprint(w, testQuoteBody)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	amount := big.NewInt(25_000_000)
	quote, err := client.GetQuote(context.Background(), testBaseUSDC, testPolygonUSDC, amount, testDepositor, testRecipient)
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolBridge, quote.Protocol)
	assert.Equal(t, "25000000", quote.AmountIn.String())
	assert.Equal(t, "24900000", quote.AmountOut.String())
	assert.Equal(t, "100000", quote.Fee.String(), "fee is the quoted input/output difference")
	assert.False(t, quote.Deadline.IsZero())

	assert.Equal(t, []string{"exactInput"}, query["tradeType"])
	assert.Equal(t, []string{"8453"}, query["originChainId"])
	assert.Equal(t, []string{"137"}, query["destinationChainId"])
	assert.Equal(t, []string{testDepositor.Hex()}, query["depositor"])
	assert.Equal(t, []string{testRecipient.Hex()}, query["recipient"])
	assert.Equal(t, []string{"auto"}, query["slippage"])

	var handle QuoteHandle
	require.NoError(t, json.Unmarshal(quote.Handle, &handle))
	require.NotNil(t, handle.SwapTx)
	assert.Equal(t, "0xdeadbeef", handle.SwapTx.Data)
}

func TestGetQuoteRejectsZeroOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expectedOutput": "0", "swapTx": {"to": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB", "data": "0x00"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testBaseUSDC, testPolygonUSDC, big.NewInt(100), testDepositor, testRecipient)
	assert.ErrorIs(t, err, types.ErrNoLiquidity)
}

func TestGetQuoteRejectsMissingDepositTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expectedOutput": "100"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testBaseUSDC, testPolygonUSDC, big.NewInt(100), testDepositor, testRecipient)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing deposit transaction")
}

func TestGetQuoteClientErrorIsFinal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "unsupported route"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testBaseUSDC, testPolygonUSDC, big.NewInt(100), testDepositor, testRecipient)
	require.Error(t, err)
	assert.False(t, types.IsTransient(err))
	assert.Equal(t, 1, calls, "4xx responses must not be retried")
}

func TestGetDepositStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/deposit/status", r.URL.Path)
		require.Equal(t, "8453", r.URL.Query().Get("originChainId"))
		fmt.Fprint(w, `{"status": "filled", "fillTx": "0xfill", "depositId": "99"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	status, err := client.GetDepositStatus(context.Background(), 8453, "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, "filled", status.Status)
	assert.Equal(t, "0xfill", status.FillTx)
}

func TestGetDepositStatusServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetDepositStatus(context.Background(), 8453, "0xdeposit")
	assert.True(t, types.IsTransient(err))
}
