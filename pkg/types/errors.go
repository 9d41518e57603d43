package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the order lifecycle. Matched with errors.Is; every
// error surfaced by the core wraps exactly one of these or TransientError.
var (
	ErrQuoteExpired        = errors.New("quote expired")
	ErrNoLiquidity         = errors.New("no liquidity for requested pair")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrApprovalRejected    = errors.New("approval transaction reverted")
	ErrApprovalTimeout     = errors.New("approval confirmation timed out")
	ErrSubmissionRejected  = errors.New("order rejected by protocol")
)

// TransientError marks a retryable I/O failure. Callers retry these with
// backoff up to a bounded attempt count; everything else is final.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure of the named operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
