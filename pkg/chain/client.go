package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/types"
)

// Minimal ERC-20 ABI: the reads the core needs plus approve.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ReceiptStatus is the observable state of a broadcast transaction.
type ReceiptStatus int

const (
	ReceiptPending ReceiptStatus = iota
	ReceiptConfirmed
	ReceiptReverted
)

// Client provides read and write access to one chain. Transaction submission
// for the held signer is serialized under a nonce mutex so approval and order
// transactions from the same account never race on nonce assignment.
type Client struct {
	name    string
	chainID *big.Int
	ec      *ethclient.Client
	erc20   abi.ABI
	log     zerolog.Logger

	nonceMu sync.Mutex
}

// Dial connects to the first reachable RPC endpoint in order. Endpoints are
// ordered by reliability in configuration.
func Dial(ctx context.Context, name string, chainID uint64, rpcURLs []string, log zerolog.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured for network %s", name)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	var lastErr error
	for _, url := range rpcURLs {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		id, err := ec.ChainID(ctx)
		if err != nil {
			ec.Close()
			lastErr = err
			continue
		}
		if id.Uint64() != chainID {
			ec.Close()
			lastErr = fmt.Errorf("endpoint %s reports chain id %d, want %d", url, id.Uint64(), chainID)
			continue
		}
		log.Debug().Str("network", name).Str("rpc", url).Msg("connected")
		return &Client{
			name:    name,
			chainID: id,
			ec:      ec,
			erc20:   parsed,
			log:     log,
		}, nil
	}
	return nil, fmt.Errorf("all RPC endpoints failed for network %s: %w", name, lastErr)
}

// Name returns the configured network name.
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Balance returns the smallest-unit balance of the asset for the address.
func (c *Client) Balance(ctx context.Context, asset types.Asset, owner common.Address) (*big.Int, error) {
	if asset.Native {
		balance, err := c.ec.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, types.Transient("balance query", err)
		}
		return balance, nil
	}
	data, err := c.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &asset.Address, Data: data}, nil)
	if err != nil {
		return nil, types.Transient("balance query", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// Allowance returns the owner→spender approved amount for the token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := c.erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, types.Transient("allowance query", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// ApproveCalldata packs an ERC-20 approve(spender, amount) call.
func (c *Client) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.erc20.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return data, nil
}

// EstimateFee estimates gas limit (with a 20% buffer) and gas price for the
// call. Falls back to the provided default limit when estimation fails.
func (c *Client) EstimateFee(ctx context.Context, msg ethereum.CallMsg, defaultLimit uint64) (uint64, *big.Int, error) {
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, types.Transient("gas price query", err)
	}
	gasLimit := defaultLimit
	if estimated, err := c.ec.EstimateGas(ctx, msg); err == nil {
		gasLimit = estimated * 120 / 100
	}
	return gasLimit, gasPrice, nil
}

// Broadcast sends a signed transaction to the network.
func (c *Client) Broadcast(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	if err := c.ec.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, types.Transient("transaction broadcast", err)
	}
	return tx.Hash(), nil
}

// SubmitTx assigns the next nonce, builds and broadcasts a transaction while
// holding the nonce mutex. build receives the reserved nonce and must return
// a fully signed transaction. The nonce mutex is the only lock in the core
// held across a network call: it keeps concurrent submissions from the same
// signer on distinct consecutive nonces.
func (c *Client) SubmitTx(ctx context.Context, from common.Address, build func(nonce uint64) (*ethtypes.Transaction, error)) (common.Hash, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, types.Transient("nonce query", err)
	}
	tx, err := build(nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return c.Broadcast(ctx, tx)
}

// ReceiptStatus reports whether the transaction is pending, confirmed, or
// reverted. The read is idempotent.
func (c *Client) ReceiptStatus(ctx context.Context, hash common.Hash) (ReceiptStatus, error) {
	receipt, err := c.ec.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ReceiptPending, nil
		}
		return ReceiptPending, types.Transient("receipt query", err)
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return ReceiptConfirmed, nil
	}
	return ReceiptReverted, nil
}

// WaitMined polls for the transaction receipt until it is mined or attempts
// are exhausted.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, interval time.Duration, maxAttempts int) (ReceiptStatus, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, err := c.ReceiptStatus(ctx, hash)
		if err == nil && status != ReceiptPending {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return ReceiptPending, ctx.Err()
		case <-time.After(interval):
		}
	}
	return ReceiptPending, fmt.Errorf("transaction %s not mined after %d attempts", hash.Hex(), maxAttempts)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.ec != nil {
		c.ec.Close()
	}
}
