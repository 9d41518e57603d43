package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Quote is a normalized price quote from an external protocol. Amounts are
// integers in the smallest unit of their respective asset: AmountIn and Fee
// in Source units, AmountOut in Dest units. Handle carries the protocol's
// raw quote payload and is replayed verbatim into the built order.
type Quote struct {
	Protocol  Protocol
	Source    Asset
	Dest      Asset
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
	Deadline  time.Time
	Handle    json.RawMessage
}

// Expired reports whether the quote's validity deadline has passed.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.Deadline)
}

// Validate checks the invariants a quote must satisfy when issued.
func (q *Quote) Validate(now time.Time) error {
	if q.AmountIn == nil || q.AmountIn.Sign() <= 0 {
		return fmt.Errorf("quote input amount must be positive")
	}
	if q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
		return fmt.Errorf("quote output amount must be positive")
	}
	if q.Fee == nil || q.Fee.Sign() < 0 {
		return fmt.Errorf("quote fee must be non-negative")
	}
	if q.Expired(now) {
		return fmt.Errorf("quote deadline %s is not in the future", q.Deadline.Format(time.RFC3339))
	}
	return nil
}
