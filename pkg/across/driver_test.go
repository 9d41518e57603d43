package across

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/settle"
	"noctiluca-tools/pkg/types"
)

type fakeTxBackend struct {
	receipt   chain.ReceiptStatus
	submitted []*ethtypes.Transaction
}

func (b *fakeTxBackend) ChainID() *big.Int { return big.NewInt(8453) }

func (b *fakeTxBackend) EstimateFee(ctx context.Context, msg ethereum.CallMsg, defaultLimit uint64) (uint64, *big.Int, error) {
	return defaultLimit, big.NewInt(1_000_000_000), nil
}

func (b *fakeTxBackend) SubmitTx(ctx context.Context, from common.Address, build func(nonce uint64) (*ethtypes.Transaction, error)) (common.Hash, error) {
	tx, err := build(3)
	if err != nil {
		return common.Hash{}, err
	}
	b.submitted = append(b.submitted, tx)
	return tx.Hash(), nil
}

func (b *fakeTxBackend) ReceiptStatus(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error) {
	return b.receipt, nil
}

type fakeReceiptBackend struct {
	receipt chain.ReceiptStatus
}

func (b *fakeReceiptBackend) ReceiptStatus(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error) {
	return b.receipt, nil
}

type passthroughSigner struct{}

func (passthroughSigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return tx, nil
}

func depositStatusServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/deposit/status", r.URL.Path)
		fmt.Fprint(w, body)
	}))
}

func newTestDriver(client *Client, source *fakeTxBackend, dest *fakeReceiptBackend) *Driver {
	return NewDriver(client, source, dest, passthroughSigner{}, testDepositor, zerolog.Nop())
}

func TestDriverSubmitBroadcastsQuotedTx(t *testing.T) {
	source := &fakeTxBackend{}
	driver := newTestDriver(NewClient("http://unused.invalid", zerolog.Nop()), source, &fakeReceiptBackend{})

	order := &types.SignedOrder{Order: types.Order{Quote: types.Quote{
		Protocol: types.ProtocolBridge,
		AmountIn: big.NewInt(25_000_000),
		Deadline: time.Now().Add(time.Minute),
		Handle:   json.RawMessage(testQuoteBody),
	}}}

	id, err := driver.Submit(context.Background(), order)
	require.NoError(t, err)
	require.Len(t, source.submitted, 1)

	tx := source.submitted[0]
	assert.Equal(t, tx.Hash().Hex(), id)
	assert.Equal(t, common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"), *tx.To())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tx.Data())
	assert.Equal(t, uint64(3), tx.Nonce())
}

func TestDriverSubmitRejectsBrokenHandle(t *testing.T) {
	driver := newTestDriver(NewClient("http://unused.invalid", zerolog.Nop()), &fakeTxBackend{}, &fakeReceiptBackend{})

	order := &types.SignedOrder{Order: types.Order{Quote: types.Quote{
		Handle: json.RawMessage(`{"expectedOutput": "1"}`),
	}}}
	_, err := driver.Submit(context.Background(), order)
	assert.Error(t, err)
}

func TestDriverPollSourcePending(t *testing.T) {
	driver := newTestDriver(NewClient("http://unused.invalid", zerolog.Nop()),
		&fakeTxBackend{receipt: chain.ReceiptPending}, &fakeReceiptBackend{})

	signal, _, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalNone, signal)
}

func TestDriverPollSourceReverted(t *testing.T) {
	driver := newTestDriver(NewClient("http://unused.invalid", zerolog.Nop()),
		&fakeTxBackend{receipt: chain.ReceiptReverted}, &fakeReceiptBackend{})

	signal, _, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalReverted, signal)
}

func TestDriverPollRelayPending(t *testing.T) {
	srv := depositStatusServer(t, `{"status": "pending"}`)
	defer srv.Close()

	driver := newTestDriver(NewClient(srv.URL, zerolog.Nop()),
		&fakeTxBackend{receipt: chain.ReceiptConfirmed}, &fakeReceiptBackend{})

	signal, _, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalPending, signal)
}

func TestDriverPollFilledAwaitsDestinationReceipt(t *testing.T) {
	srv := depositStatusServer(t, `{"status": "filled", "fillTx": "0xfill"}`)
	defer srv.Close()

	source := &fakeTxBackend{receipt: chain.ReceiptConfirmed}

	// Fill reported but destination receipt still pending: not terminal.
	driver := newTestDriver(NewClient(srv.URL, zerolog.Nop()), source, &fakeReceiptBackend{receipt: chain.ReceiptPending})
	signal, _, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalPending, signal)

	// Destination receipt confirmed: terminal success.
	driver = newTestDriver(NewClient(srv.URL, zerolog.Nop()), source, &fakeReceiptBackend{receipt: chain.ReceiptConfirmed})
	signal, detail, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalConfirmed, signal)
	assert.Equal(t, "0xfill", detail)
}

func TestDriverPollRelayExpired(t *testing.T) {
	srv := depositStatusServer(t, `{"status": "expired"}`)
	defer srv.Close()

	driver := newTestDriver(NewClient(srv.URL, zerolog.Nop()),
		&fakeTxBackend{receipt: chain.ReceiptConfirmed}, &fakeReceiptBackend{})

	signal, _, err := driver.Poll(context.Background(), "0xdeposit")
	require.NoError(t, err)
	assert.Equal(t, settle.SignalExpired, signal)
}
