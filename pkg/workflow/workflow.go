package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/across"
	"noctiluca-tools/pkg/allowance"
	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/cowswap"
	"noctiluca-tools/pkg/settle"
	"noctiluca-tools/pkg/types"
	"noctiluca-tools/pkg/wallet"
)

// deadlineSlack pads the overall tracking timeout past the order's own
// deadline by more than one maximum polling interval, so the tracker itself
// always observes expiry before the context does.
const deadlineSlack = time.Minute

// Orchestrator sequences quote → allowance → build → sign → submit-and-track
// for one operation per invocation. The source chain client is shared with
// the allowance manager; the destination client is only read for bridge
// confirmation.
type Orchestrator struct {
	wallet *wallet.Wallet
	source *chain.Client
	dest   *chain.Client
	cow    *cowswap.Client
	bridge *across.Client
	log    zerolog.Logger
}

// New wires an orchestrator from its collaborators. dest may be nil when
// only swap operations are run.
func New(w *wallet.Wallet, source, dest *chain.Client, cow *cowswap.Client, bridge *across.Client, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		wallet: w,
		source: source,
		dest:   dest,
		cow:    cow,
		bridge: bridge,
		log:    log,
	}
}

// Signer returns the address orders are signed with.
func (o *Orchestrator) Signer() common.Address {
	return o.wallet.Address()
}

// QuoteSwap fetches a gasless-swap quote with no side effects.
func (o *Orchestrator) QuoteSwap(ctx context.Context, source, dest types.Asset, amountIn *big.Int, receiver common.Address) (*types.Quote, error) {
	return o.cow.GetQuote(ctx, source, dest, amountIn, o.wallet.Address(), receiver)
}

// QuoteBridge fetches a bridge quote with no side effects.
func (o *Orchestrator) QuoteBridge(ctx context.Context, source, dest types.Asset, amount *big.Int, receiver common.Address) (*types.Quote, error) {
	return o.bridge.GetQuote(ctx, source, dest, amount, o.wallet.Address(), receiver)
}

// Swap runs the full gasless-swap pipeline and returns the terminal
// settlement outcome.
func (o *Orchestrator) Swap(ctx context.Context, source, dest types.Asset, amountIn *big.Int, receiver common.Address) (*types.Outcome, error) {
	log := o.runLogger("swap")
	owner := o.wallet.Address()

	quote, err := o.cow.GetQuote(ctx, source, dest, amountIn, owner, receiver)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("sell", source.Format(quote.AmountIn)).
		Str("buy", dest.Format(quote.AmountOut)).
		Time("deadline", quote.Deadline).
		Msg("quote received")

	manager := allowance.NewManager(o.source, o.wallet, log)
	if err := manager.Ensure(ctx, owner, cowswap.VaultRelayer, source, quote.AmountIn); err != nil {
		return nil, err
	}

	builder := cowswap.NewBuilder(o.source.ChainID().Uint64())
	order, err := builder.Build(quote, owner, receiver)
	if err != nil {
		return nil, err
	}

	digest, sig, err := o.wallet.SignTypedData(builder.TypedData(order))
	if err != nil {
		// Signing failures are fatal to the invocation: no retry.
		return nil, fmt.Errorf("order signing failed: %w", err)
	}
	signed := &types.SignedOrder{Order: *order, Digest: digest, Signature: sig}

	return o.track(ctx, log, cowswap.NewDriver(o.cow), signed)
}

// Bridge runs the full bridge pipeline. Terminal success is a confirmed
// receipt on the destination chain.
func (o *Orchestrator) Bridge(ctx context.Context, source, dest types.Asset, amount *big.Int, receiver common.Address) (*types.Outcome, error) {
	if o.dest == nil {
		return nil, fmt.Errorf("no destination chain client configured")
	}
	log := o.runLogger("bridge")
	owner := o.wallet.Address()

	quote, err := o.bridge.GetQuote(ctx, source, dest, amount, owner, receiver)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("in", source.Format(quote.AmountIn)).
		Str("out", dest.Format(quote.AmountOut)).
		Time("deadline", quote.Deadline).
		Msg("bridge quote received")

	var handle across.QuoteHandle
	if err := json.Unmarshal(quote.Handle, &handle); err != nil {
		return nil, fmt.Errorf("invalid bridge quote handle: %w", err)
	}
	spender, err := across.Spender(&handle)
	if err != nil {
		return nil, err
	}

	manager := allowance.NewManager(o.source, o.wallet, log)
	if err := manager.Ensure(ctx, owner, spender, source, quote.AmountIn); err != nil {
		return nil, err
	}

	order, err := across.NewBuilder().Build(quote, owner, receiver)
	if err != nil {
		return nil, err
	}
	// The deposit transaction is signed during submission, under the source
	// chain's nonce lock.
	signed := &types.SignedOrder{Order: *order}

	driver := across.NewDriver(o.bridge, o.source, o.dest, o.wallet, owner, log)
	return o.track(ctx, log, driver, signed)
}

// track runs the settlement tracker with an overall timeout of the order
// deadline plus slack. Cancellation before submission discards the order
// with no network effect; after submission the tracker runs to a terminal
// state.
func (o *Orchestrator) track(ctx context.Context, log zerolog.Logger, driver settle.Driver, signed *types.SignedOrder) (*types.Outcome, error) {
	if err := ctx.Err(); err != nil {
		log.Info().Msg("workflow cancelled before submission, order discarded")
		return &types.Outcome{State: types.StateCancelled, Reason: "cancelled before submission"}, nil
	}

	trackCtx, cancel := context.WithDeadline(ctx, signed.Quote.Deadline.Add(deadlineSlack))
	defer cancel()

	outcome, err := settle.NewTracker(driver, log).Run(trackCtx, signed)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("state", string(outcome.State)).
		Str("order", outcome.OrderID).
		Str("reason", outcome.Reason).
		Msg("workflow finished")
	return outcome, nil
}

func (o *Orchestrator) runLogger(op string) zerolog.Logger {
	return o.log.With().Str("run", uuid.NewString()).Str("op", op).Logger()
}
