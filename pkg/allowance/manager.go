package allowance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/retry"
	"noctiluca-tools/pkg/types"
)

const (
	defaultApproveGasLimit = 60000
	receiptPollInterval    = 2 * time.Second
	maxReceiptPolls        = 60

	readAttempts    = 3
	readBackoffBase = 500 * time.Millisecond
	readBackoffMax  = 5 * time.Second
)

// MaxApproval is the unlimited approval sentinel (2^256 - 1). The manager
// approves this amount rather than the exact minimum: one gas spend per
// (token, spender) pair instead of one per order.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Backend is the subset of chain client operations the manager needs.
// *chain.Client satisfies it.
type Backend interface {
	ChainID() *big.Int
	Balance(ctx context.Context, asset types.Asset, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error)
	EstimateFee(ctx context.Context, msg ethereum.CallMsg, defaultLimit uint64) (uint64, *big.Int, error)
	SubmitTx(ctx context.Context, from common.Address, build func(nonce uint64) (*ethtypes.Transaction, error)) (common.Hash, error)
	ReceiptStatus(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error)
}

// Signer signs approval transactions.
type Signer interface {
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// Manager ensures on-chain spending approvals exist before orders that
// reference them are submitted.
type Manager struct {
	backend Backend
	signer  Signer
	log     zerolog.Logger
}

// NewManager creates an allowance manager over the given chain backend.
func NewManager(backend Backend, signer Signer, log zerolog.Logger) *Manager {
	return &Manager{backend: backend, signer: signer, log: log}
}

// Ensure checks the recorded owner→spender allowance for the asset and, if
// below minAmount, submits an unlimited approval and blocks until its receipt
// is final. Returns without a transaction when the allowance already
// satisfies the minimum. Native assets need no approval.
func (m *Manager) Ensure(ctx context.Context, owner, spender common.Address, asset types.Asset, minAmount *big.Int) error {
	if asset.Native {
		return nil
	}

	var current *big.Int
	err := retry.Do(ctx, readAttempts, readBackoffBase, readBackoffMax, func() error {
		var err error
		current, err = m.backend.Allowance(ctx, asset.Address, owner, spender)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}

	if current.Cmp(minAmount) >= 0 {
		m.log.Debug().
			Str("token", asset.Symbol).
			Str("spender", spender.Hex()).
			Str("allowance", current.String()).
			Msg("allowance already sufficient")
		return nil
	}

	hash, err := m.submitApproval(ctx, owner, spender, asset)
	if err != nil {
		return err
	}

	m.log.Info().
		Str("token", asset.Symbol).
		Str("spender", spender.Hex()).
		Str("tx", hash.Hex()).
		Msg("approval submitted")

	return m.awaitReceipt(ctx, hash)
}

func (m *Manager) submitApproval(ctx context.Context, owner, spender common.Address, asset types.Asset) (common.Hash, error) {
	data, err := m.backend.ApproveCalldata(spender, MaxApproval)
	if err != nil {
		return common.Hash{}, err
	}

	msg := ethereum.CallMsg{From: owner, To: &asset.Address, Data: data}
	gasLimit, gasPrice, err := m.backend.EstimateFee(ctx, msg, defaultApproveGasLimit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate approval fee: %w", err)
	}

	// Preflight: refuse to broadcast an approval the account cannot pay for.
	native := types.Asset{ChainID: m.backend.ChainID().Uint64(), Native: true, Decimals: 18}
	balance, err := m.backend.Balance(ctx, native, owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read native balance: %w", err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if balance.Cmp(cost) < 0 {
		return common.Hash{}, fmt.Errorf("insufficient native balance for approval gas: have %s, need %s", balance, cost)
	}

	return m.backend.SubmitTx(ctx, owner, func(nonce uint64) (*ethtypes.Transaction, error) {
		tx := ethtypes.NewTransaction(nonce, asset.Address, big.NewInt(0), gasLimit, gasPrice, data)
		return m.signer.SignTx(tx, m.backend.ChainID())
	})
}

func (m *Manager) awaitReceipt(ctx context.Context, hash common.Hash) error {
	for attempt := 0; attempt < maxReceiptPolls; attempt++ {
		status, err := m.backend.ReceiptStatus(ctx, hash)
		if err == nil {
			switch status {
			case chain.ReceiptConfirmed:
				m.log.Info().Str("tx", hash.Hex()).Msg("approval confirmed")
				return nil
			case chain.ReceiptReverted:
				return fmt.Errorf("approval %s: %w", hash.Hex(), types.ErrApprovalRejected)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
	return fmt.Errorf("approval %s: %w", hash.Hex(), types.ErrApprovalTimeout)
}
