package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/types"
)

// Signal is a protocol-specific observation mapped onto the shared
// settlement state machine.
type Signal int

const (
	SignalNone        Signal = iota // nothing new observed
	SignalPending                   // provisional match/inclusion observed
	SignalPartialFill               // solver filled part of the amount
	SignalFilled                    // final fill observed (gasless swap)
	SignalConfirmed                 // destination receipt observed (bridge)
	SignalCancelled                 // explicit cancellation observed
	SignalExpired                   // protocol reports the order expired
	SignalReverted                  // on-chain revert observed
)

// Driver adapts one protocol's submission and polling endpoints. Poll must
// be idempotent: safe to repeat, no side effects beyond the read.
type Driver interface {
	// Submit sends the signed order to the protocol's network endpoint and
	// returns its order or transaction identifier.
	Submit(ctx context.Context, order *types.SignedOrder) (string, error)

	// Poll observes current settlement progress for the identifier. The
	// returned detail is a protocol-specific transaction hash, when known.
	Poll(ctx context.Context, orderID string) (Signal, string, error)
}

const (
	defaultMinInterval = 2 * time.Second
	defaultMaxInterval = 30 * time.Second

	submitAttempts             = 3
	submitBackoff              = 2 * time.Second
	maxConsecutivePollFailures = 10
)

// Tracker submits signed orders and polls them to a terminal settlement
// state with exponential backoff, bounded by the order's own deadline.
type Tracker struct {
	driver      Driver
	log         zerolog.Logger
	minInterval time.Duration
	maxInterval time.Duration
	now         func() time.Time
}

// NewTracker creates a tracker over the given protocol driver.
func NewTracker(driver Driver, log zerolog.Logger) *Tracker {
	return &Tracker{
		driver:      driver,
		log:         log,
		minInterval: defaultMinInterval,
		maxInterval: defaultMaxInterval,
		now:         time.Now,
	}
}

// SetPollInterval overrides the backoff bounds. Intended for tests and
// fast-settling protocols.
func (t *Tracker) SetPollInterval(min, max time.Duration) {
	t.minInterval = min
	t.maxInterval = max
}

// Run submits the signed order and polls until a terminal state is reached,
// returning the terminal outcome. Expiry is enforced against the order
// deadline: the tracker never issues a poll after it has passed. A non-nil
// error is returned only for infrastructure failures (context cancellation,
// retries exhausted); protocol-level terminal failures are outcomes.
func (t *Tracker) Run(ctx context.Context, order *types.SignedOrder) (*types.Outcome, error) {
	orderID, outcome, err := t.submit(ctx, order)
	if err != nil || outcome != nil {
		return outcome, err
	}

	state := types.StateSubmitted
	t.logTransition(orderID, types.StateBuilt, state)

	deadline := order.Quote.Deadline
	delay := t.minInterval
	failures := 0
	lastTx := ""

	for {
		if !t.now().Before(deadline) {
			t.logTransition(orderID, state, types.StateExpired)
			return &types.Outcome{State: types.StateExpired, OrderID: orderID, TxHash: lastTx, Reason: "deadline passed with no fill"}, nil
		}

		signal, detail, err := t.driver.Poll(ctx, orderID)
		if err != nil {
			if !types.IsTransient(err) {
				return nil, fmt.Errorf("settlement poll failed: %w", err)
			}
			failures++
			if failures >= maxConsecutivePollFailures {
				return nil, fmt.Errorf("settlement poll failed %d times in a row: %w", failures, err)
			}
		} else {
			failures = 0
			if detail != "" {
				lastTx = detail
			}
			next, terminal := t.apply(state, signal)
			if next != state {
				t.logTransition(orderID, state, next)
				state = next
			}
			if terminal {
				return &types.Outcome{State: state, OrderID: orderID, TxHash: lastTx, Reason: reason(state)}, nil
			}
		}

		wait := delay
		if remaining := deadline.Sub(t.now()); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > t.maxInterval {
			delay = t.maxInterval
		}
	}
}

// submit sends the order with bounded retries on transient errors. The same
// signed order is resent as-is; a new uniqueness token is never minted here.
// Returns a terminal outcome on explicit protocol rejection.
func (t *Tracker) submit(ctx context.Context, order *types.SignedOrder) (string, *types.Outcome, error) {
	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		orderID, err := t.driver.Submit(ctx, order)
		if err == nil {
			return orderID, nil, nil
		}
		if errors.Is(err, types.ErrSubmissionRejected) {
			t.log.Warn().Err(err).Msg("order rejected at submission")
			return "", &types.Outcome{State: types.StateRejected, Reason: err.Error()}, nil
		}
		if !types.IsTransient(err) {
			return "", nil, fmt.Errorf("order submission failed: %w", err)
		}
		lastErr = err
		t.log.Debug().Err(err).Int("attempt", attempt+1).Msg("transient submit error, retrying")
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(submitBackoff << attempt):
		}
	}
	return "", nil, fmt.Errorf("order submission failed after %d attempts: %w", submitAttempts, lastErr)
}

// apply maps a polled signal onto the state machine and reports whether the
// resulting state is terminal.
func (t *Tracker) apply(state types.SettlementState, signal Signal) (types.SettlementState, bool) {
	next := state
	switch signal {
	case SignalPending:
		if state == types.StateSubmitted {
			next = types.StatePending
		}
	case SignalPartialFill:
		next = types.StatePartiallyFilled
	case SignalFilled:
		next = types.StateFilled
	case SignalConfirmed:
		next = types.StateConfirmed
	case SignalCancelled:
		next = types.StateCancelled
	case SignalExpired:
		next = types.StateExpired
	case SignalReverted:
		next = types.StateReverted
	}
	return next, next.Terminal()
}

func (t *Tracker) logTransition(orderID string, from, to types.SettlementState) {
	t.log.Info().
		Str("order", orderID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("settlement transition")
}

func reason(state types.SettlementState) string {
	switch state {
	case types.StateFilled:
		return "order filled"
	case types.StateConfirmed:
		return "destination receipt confirmed"
	case types.StateExpired:
		return "deadline passed with no fill"
	case types.StateCancelled:
		return "order cancelled"
	case types.StateRejected:
		return "order rejected by protocol"
	case types.StateReverted:
		return "transaction reverted on-chain"
	}
	return string(state)
}
