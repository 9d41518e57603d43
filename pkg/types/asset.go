package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a token on a specific chain. A zero Address with
// Native=true denotes the chain's native currency.
type Asset struct {
	ChainID  uint64
	Address  common.Address
	Symbol   string
	Decimals uint8
	Native   bool
}

// Key returns the (chain, address) identity of the asset.
func (a Asset) Key() string {
	if a.Native {
		return fmt.Sprintf("%d:native", a.ChainID)
	}
	return fmt.Sprintf("%d:%s", a.ChainID, strings.ToLower(a.Address.Hex()))
}

// Format renders a smallest-unit amount in human units.
func (a Asset) Format(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, pow10(a.Decimals))
	return f.Text('f', int(a.Decimals))
}

// Parse converts a human-unit decimal string to the smallest-unit integer.
// Parsing is exact: the integer and fractional digits are scaled with
// big.Int arithmetic, so no amount is ever truncated by float rounding.
// Fractional digits beyond the asset's precision are rejected.
func (a Asset) Parse(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" || s == "." {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount must be positive: %s", amount)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(a.Decimals) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, a.Decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(a.Decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	return out, nil
}

func pow10(decimals uint8) *big.Float {
	return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
