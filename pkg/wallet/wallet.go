package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Wallet holds the workflow's signing credential and derives the controlling
// address. The private key never leaves this package; collaborators request
// signatures over structured messages or transactions.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// New parses a hex-encoded secp256k1 private key, with or without 0x prefix.
func New(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimSpace(strings.TrimPrefix(hexKey, "0x"))
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the address controlled by the held key.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTypedData hashes the EIP-712 typed data and signs the digest. Returns
// the digest and a 65-byte signature with V in {27, 28}, the encoding relay
// endpoints expect.
func (w *Wallet) SignTypedData(data apitypes.TypedData) (common.Hash, []byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[64] += 27
	return common.BytesToHash(digest), sig, nil
}

// SignTx signs a transaction for the given chain.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
