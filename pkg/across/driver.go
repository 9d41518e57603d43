package across

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/settle"
	"noctiluca-tools/pkg/types"
)

const defaultDepositGasLimit = 300000

// TxBackend is the source-chain client surface the driver needs.
type TxBackend interface {
	ChainID() *big.Int
	EstimateFee(ctx context.Context, msg ethereum.CallMsg, defaultLimit uint64) (uint64, *big.Int, error)
	SubmitTx(ctx context.Context, from common.Address, build func(nonce uint64) (*ethtypes.Transaction, error)) (common.Hash, error)
	ReceiptStatus(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error)
}

// ReceiptBackend is the destination-chain read surface.
type ReceiptBackend interface {
	ReceiptStatus(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error)
}

// Signer signs the deposit transaction.
type Signer interface {
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// Driver adapts Across to the settlement tracker. Submission broadcasts the
// quoted deposit transaction on the source chain; the provisional signal is
// the source receipt, and terminal success requires a fill receipt on the
// destination chain.
type Driver struct {
	client *Client
	source TxBackend
	dest   ReceiptBackend
	signer Signer
	from   common.Address
	log    zerolog.Logger
}

// NewDriver creates a bridge settlement driver.
func NewDriver(client *Client, source TxBackend, dest ReceiptBackend, signer Signer, from common.Address, log zerolog.Logger) *Driver {
	return &Driver{
		client: client,
		source: source,
		dest:   dest,
		signer: signer,
		from:   from,
		log:    log,
	}
}

// Submit signs and broadcasts the quoted deposit transaction under the
// source chain's nonce lock. The returned identifier is the deposit
// transaction hash.
func (d *Driver) Submit(ctx context.Context, order *types.SignedOrder) (string, error) {
	var handle QuoteHandle
	if err := json.Unmarshal(order.Quote.Handle, &handle); err != nil {
		return "", fmt.Errorf("invalid bridge quote handle: %w", err)
	}
	if handle.SwapTx == nil {
		return "", fmt.Errorf("bridge quote handle missing deposit transaction")
	}
	if !common.IsHexAddress(handle.SwapTx.To) {
		return "", fmt.Errorf("invalid deposit target address: %s", handle.SwapTx.To)
	}

	to := common.HexToAddress(handle.SwapTx.To)
	data, err := hexutil.Decode(handle.SwapTx.Data)
	if err != nil {
		return "", fmt.Errorf("invalid deposit calldata: %w", err)
	}
	value, err := parseBig(handle.SwapTx.Value)
	if err != nil {
		return "", fmt.Errorf("invalid deposit value: %w", err)
	}

	msg := ethereum.CallMsg{From: d.from, To: &to, Data: data, Value: value}
	gasLimit, gasPrice, err := d.source.EstimateFee(ctx, msg, defaultDepositGasLimit)
	if err != nil {
		return "", fmt.Errorf("failed to estimate deposit fee: %w", err)
	}

	hash, err := d.source.SubmitTx(ctx, d.from, func(nonce uint64) (*ethtypes.Transaction, error) {
		tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
		return d.signer.SignTx(tx, d.source.ChainID())
	})
	if err != nil {
		return "", err
	}

	d.log.Info().Str("tx", hash.Hex()).Msg("bridge deposit broadcast")
	return hash.Hex(), nil
}

// Poll checks the source receipt first, then the relay's fill progress, and
// finally confirms the fill on the destination chain. Bridge success is
// defined by the destination receipt, not the source one.
func (d *Driver) Poll(ctx context.Context, orderID string) (settle.Signal, string, error) {
	sourceStatus, err := d.source.ReceiptStatus(ctx, common.HexToHash(orderID))
	if err != nil {
		return settle.SignalNone, "", err
	}
	switch sourceStatus {
	case chain.ReceiptPending:
		return settle.SignalNone, "", nil
	case chain.ReceiptReverted:
		return settle.SignalReverted, "", nil
	}

	deposit, err := d.client.GetDepositStatus(ctx, d.source.ChainID().Uint64(), orderID)
	if err != nil {
		return settle.SignalNone, "", err
	}

	switch deposit.Status {
	case "filled":
		if deposit.FillTx == "" {
			return settle.SignalPending, "", nil
		}
		fillStatus, err := d.dest.ReceiptStatus(ctx, common.HexToHash(deposit.FillTx))
		if err != nil {
			return settle.SignalNone, "", err
		}
		if fillStatus == chain.ReceiptConfirmed {
			return settle.SignalConfirmed, deposit.FillTx, nil
		}
		return settle.SignalPending, deposit.FillTx, nil
	case "pending":
		return settle.SignalPending, "", nil
	case "expired":
		return settle.SignalExpired, "", nil
	default:
		return settle.SignalPending, "", nil
	}
}
