package across

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"noctiluca-tools/pkg/types"
)

// Builder turns normalized bridge quotes into unsigned orders. The
// protocol-correct artifact for a bridge is the quoted deposit transaction,
// carried opaquely in the quote handle; the salt records the order's
// uniqueness token.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a bridge order builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build derives an unsigned order from a valid, non-expired bridge quote.
func (b *Builder) Build(quote *types.Quote, signer, receiver common.Address) (*types.Order, error) {
	if quote.Protocol != types.ProtocolBridge {
		return nil, fmt.Errorf("builder cannot handle %q orders: %w", quote.Protocol, types.ErrUnsupportedProtocol)
	}
	if quote.Expired(b.now()) {
		return nil, fmt.Errorf("quote deadline %s: %w", quote.Deadline.Format(time.RFC3339), types.ErrQuoteExpired)
	}
	if quote.AmountIn.Sign() <= 0 || quote.AmountOut.Sign() <= 0 {
		return nil, fmt.Errorf("order amounts must be positive")
	}

	var handle QuoteHandle
	if err := json.Unmarshal(quote.Handle, &handle); err != nil {
		return nil, fmt.Errorf("invalid bridge quote handle: %w", err)
	}
	if handle.SwapTx == nil {
		return nil, fmt.Errorf("bridge quote handle missing deposit transaction")
	}

	salt, err := types.NewSalt()
	if err != nil {
		return nil, err
	}

	return &types.Order{
		Quote:    *quote,
		Signer:   signer,
		Receiver: receiver,
		Salt:     salt,
	}, nil
}

// Spender extracts the contract that must be approved to pull the bridged
// funds. The API's approval transactions name it directly; without them the
// deposit target is the spender.
func Spender(handle *QuoteHandle) (common.Address, error) {
	for _, approval := range handle.ApprovalTxns {
		data, err := hexutil.Decode(approval.Data)
		if err != nil || len(data) < 36 {
			continue
		}
		// approve(address,uint256): spender is the first argument.
		return common.BytesToAddress(data[4:36]), nil
	}
	if handle.SwapTx == nil || !common.IsHexAddress(handle.SwapTx.To) {
		return common.Address{}, fmt.Errorf("bridge quote names no spender")
	}
	return common.HexToAddress(handle.SwapTx.To), nil
}

// parseBig parses a decimal or 0x-prefixed amount field.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") {
		return hexutil.DecodeBig(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
