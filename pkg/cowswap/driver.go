package cowswap

import (
	"context"
	"fmt"
	"math/big"

	"noctiluca-tools/pkg/settle"
	"noctiluca-tools/pkg/types"
)

// Driver adapts the CoW orderbook to the settlement tracker. The provisional
// signal for a gasless swap is the orderbook acknowledging the order as open;
// the final signal is a solver fill.
type Driver struct {
	client *Client
}

// NewDriver creates a settlement driver over the orderbook client.
func NewDriver(client *Client) *Driver {
	return &Driver{client: client}
}

// Submit posts the signed order and returns its UID.
func (d *Driver) Submit(ctx context.Context, order *types.SignedOrder) (string, error) {
	return d.client.SubmitOrder(ctx, order)
}

// Poll reads the orderbook status for the UID and maps it onto the shared
// state machine. An open order with a non-zero executed amount is a partial
// fill.
func (d *Driver) Poll(ctx context.Context, orderID string) (settle.Signal, string, error) {
	status, err := d.client.GetOrder(ctx, orderID)
	if err != nil {
		return settle.SignalNone, "", err
	}

	switch status.Status {
	case "open", "presignaturePending":
		if executed, ok := new(big.Int).SetString(status.ExecutedSellAmount, 10); ok && executed.Cmp(zero) > 0 {
			return settle.SignalPartialFill, "", nil
		}
		return settle.SignalPending, "", nil
	case "fulfilled":
		return settle.SignalFilled, "", nil
	case "cancelled":
		return settle.SignalCancelled, "", nil
	case "expired":
		return settle.SignalExpired, "", nil
	default:
		return settle.SignalNone, "", fmt.Errorf("unknown order status %q", status.Status)
	}
}
