package types

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol discriminates the two supported order flavors.
type Protocol string

const (
	ProtocolGaslessSwap Protocol = "gasless-swap" // off-chain signed order settled by solvers
	ProtocolBridge      Protocol = "bridge"       // source-chain deposit relayed to a destination chain
)

// Order is a fully specified, protocol-correct order derived from a Quote.
// It is unsigned until a Signature is attached via SignedOrder.
type Order struct {
	Quote    Quote
	Signer   common.Address
	Receiver common.Address

	// Salt is the 256-bit uniqueness token. Two orders from the same signer
	// never share a salt, so identical parameters cannot collide within
	// their validity windows.
	Salt [32]byte
}

// SignedOrder binds a signature to exactly one Order by content digest.
// A SignedOrder is immutable; re-signing produces a new value.
type SignedOrder struct {
	Order
	Digest    common.Hash
	Signature []byte
}

// NewSalt draws a random 256-bit uniqueness token.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("failed to generate order salt: %w", err)
	}
	return salt, nil
}
