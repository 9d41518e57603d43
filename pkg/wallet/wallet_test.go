package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewDerivesAddress(t *testing.T) {
	w, err := New(testKey)
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), w.Address())

	// 0x prefix and surrounding whitespace are tolerated.
	prefixed, err := New(" 0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), prefixed.Address())
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
	_, err = New("0x")
	assert.Error(t, err)
	_, err = New("zzzz")
	assert.Error(t, err)
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	w, err := New(testKey)
	require.NoError(t, err)

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Message": []apitypes.Type{
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Message",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(8453),
		},
		Message: apitypes.TypedDataMessage{"contents": "hello"},
	}

	digest, sig, err := w.SignTypedData(data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28, "V must be 27 or 28")

	// Recovering the public key from the signature must yield the wallet
	// address.
	recoverSig := make([]byte, 65)
	copy(recoverSig, sig)
	recoverSig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), recoverSig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignTxRecoversSender(t *testing.T) {
	w, err := New(testKey)
	require.NoError(t, err)

	chainID := big.NewInt(8453)
	to := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	tx := ethtypes.NewTransaction(7, to, big.NewInt(0), 60000, big.NewInt(1_000_000_000), nil)

	signed, err := w.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
	assert.Equal(t, uint64(7), signed.Nonce())
}
