package cowswap

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noctiluca-tools/pkg/settle"
	"noctiluca-tools/pkg/types"
)

func quoteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/quote", r.URL.Path)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestGetQuoteNormalizesResponse(t *testing.T) {
	validTo := time.Now().Add(time.Hour).Unix()
	srv := quoteServer(t, http.StatusOK, fmt.Sprintf(`{
		"quote": {
			"sellToken": "%s",
			"buyToken": "%s",
			"sellAmount": "10000000000000000",
			"buyAmount": "25000000",
			"feeAmount": "0",
			"validTo": %d
		},
		"id": 42
	}`, testWETH.Address.Hex(), testUSDC.Address.Hex(), validTo))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	quote, err := client.GetQuote(context.Background(), testWETH, testUSDC, big.NewInt(10_000_000_000_000_000), testSigner, testReceiver)
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolGaslessSwap, quote.Protocol)
	assert.Equal(t, "10000000000000000", quote.AmountIn.String())
	assert.Equal(t, "25000000", quote.AmountOut.String())
	assert.Equal(t, "0", quote.Fee.String())
	assert.Equal(t, validTo, quote.Deadline.Unix())
	assert.NotEmpty(t, quote.Handle)
}

func TestGetQuoteMapsNoLiquidity(t *testing.T) {
	srv := quoteServer(t, http.StatusBadRequest, `{"errorType": "NoLiquidity", "description": "no route found"}`)
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testWETH, testUSDC, big.NewInt(1), testSigner, testReceiver)
	assert.ErrorIs(t, err, types.ErrNoLiquidity)
}

func TestGetQuoteRejectsZeroOutput(t *testing.T) {
	validTo := time.Now().Add(time.Hour).Unix()
	srv := quoteServer(t, http.StatusOK, fmt.Sprintf(`{
		"quote": {"sellToken": "a", "buyToken": "b", "sellAmount": "100", "buyAmount": "0", "validTo": %d}
	}`, validTo))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testWETH, testUSDC, big.NewInt(100), testSigner, testReceiver)
	assert.ErrorIs(t, err, types.ErrNoLiquidity)
}

func TestGetQuoteRejectsShortValidity(t *testing.T) {
	validTo := time.Now().Add(5 * time.Second).Unix()
	srv := quoteServer(t, http.StatusOK, fmt.Sprintf(`{
		"quote": {"sellToken": "a", "buyToken": "b", "sellAmount": "100", "buyAmount": "99", "validTo": %d}
	}`, validTo))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testWETH, testUSDC, big.NewInt(100), testSigner, testReceiver)
	assert.ErrorIs(t, err, types.ErrNoLiquidity)
}

func TestGetQuoteRejectsMissingFields(t *testing.T) {
	srv := quoteServer(t, http.StatusOK, `{"quote": {"sellAmount": "100"}}`)
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GetQuote(context.Background(), testWETH, testUSDC, big.NewInt(100), testSigner, testReceiver)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func signedTestOrder(t *testing.T) *types.SignedOrder {
	t.Helper()
	builder := NewBuilder(8453)
	order, err := builder.Build(swapQuote(time.Now().Add(time.Hour)), testSigner, testReceiver)
	require.NoError(t, err)
	return &types.SignedOrder{Order: *order, Signature: make([]byte, 65)}
}

func TestSubmitOrderReturnsUID(t *testing.T) {
	const uid = "0xabc123"
	var received orderPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "%q", uid)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	got, err := client.SubmitOrder(context.Background(), signedTestOrder(t))
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	assert.Equal(t, "sell", received.Kind)
	assert.Equal(t, "eip712", received.SigningScheme)
	assert.Equal(t, testSigner.Hex(), received.From)
	assert.False(t, received.PartiallyFillable)
	assert.Len(t, received.AppData, 2+64, "appData must carry the 32-byte salt")
}

func TestSubmitOrderMapsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errorType": "InvalidSignature", "description": "signer mismatch"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.SubmitOrder(context.Background(), signedTestOrder(t))
	assert.ErrorIs(t, err, types.ErrSubmissionRejected)
	assert.Contains(t, err.Error(), "InvalidSignature")
}

func TestSubmitOrderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.SubmitOrder(context.Background(), signedTestOrder(t))
	assert.True(t, types.IsTransient(err))
}

func TestDriverPollMapsStatuses(t *testing.T) {
	cases := []struct {
		body   string
		signal settle.Signal
	}{
		{`{"uid": "u", "status": "open", "executedSellAmount": "0"}`, settle.SignalPending},
		{`{"uid": "u", "status": "open", "executedSellAmount": "5000"}`, settle.SignalPartialFill},
		{`{"uid": "u", "status": "presignaturePending"}`, settle.SignalPending},
		{`{"uid": "u", "status": "fulfilled"}`, settle.SignalFilled},
		{`{"uid": "u", "status": "cancelled"}`, settle.SignalCancelled},
		{`{"uid": "u", "status": "expired"}`, settle.SignalExpired},
	}

	for _, tc := range cases {
		body := tc.body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))

		driver := NewDriver(NewClient(srv.URL, zerolog.Nop()))
		signal, _, err := driver.Poll(context.Background(), "0xuid")
		require.NoError(t, err, "body %s", body)
		assert.Equal(t, tc.signal, signal, "body %s", body)
		srv.Close()
	}
}

func TestDriverPollRejectsUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uid": "u", "status": "weird"}`)
	}))
	defer srv.Close()

	driver := NewDriver(NewClient(srv.URL, zerolog.Nop()))
	_, _, err := driver.Poll(context.Background(), "0xuid")
	assert.Error(t, err)
}
