package types

// SettlementState tracks a submitted order through its lifecycle.
type SettlementState string

const (
	StateBuilt           SettlementState = "built"            // signed, not yet submitted
	StateSubmitted       SettlementState = "submitted"        // accepted by the network endpoint
	StatePending         SettlementState = "pending"          // observed in-network, not final
	StatePartiallyFilled SettlementState = "partially_filled" // solver filled part of the amount
	StateFilled          SettlementState = "filled"           // terminal success (gasless swap)
	StateConfirmed       SettlementState = "confirmed"        // terminal success (bridge, destination receipt)
	StateExpired         SettlementState = "expired"          // deadline passed with no fill
	StateCancelled       SettlementState = "cancelled"        // explicit cancellation
	StateRejected        SettlementState = "rejected"         // protocol-level rejection
	StateReverted        SettlementState = "reverted"         // on-chain revert
)

// Terminal reports whether no further transitions are possible.
func (s SettlementState) Terminal() bool {
	switch s {
	case StateFilled, StateConfirmed, StateExpired, StateCancelled, StateRejected, StateReverted:
		return true
	}
	return false
}

// Success reports whether the state is a terminal success.
func (s SettlementState) Success() bool {
	return s == StateFilled || s == StateConfirmed
}

// Outcome is the terminal report of a tracked order: the final state, the
// last-known protocol identifiers, and a human-readable reason.
type Outcome struct {
	State   SettlementState
	OrderID string
	TxHash  string
	Reason  string
}
