package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
	"noctiluca-tools/pkg/across"
	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/cowswap"
	"noctiluca-tools/pkg/types"
	"noctiluca-tools/pkg/workflow"
)

var (
	bridgeToken     string
	bridgeReceiver  string
	bridgeNoConfirm bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge USDC from Base to Polygon via Across Protocol",
	Long: `Bridge tokens from Base to Polygon using Across Protocol. The
deposit transaction is broadcast on Base and relayers fill it on
Polygon; the bridge is complete once the fill is confirmed there.

Pass "all" as the amount to bridge the full balance minus a small dust
reserve.

Examples:
  noctiluca bridge quote 25.0
  noctiluca bridge execute 25.0 --yes
  noctiluca bridge execute all`,
}

var bridgeQuoteCmd = &cobra.Command{
	Use:   "quote <amount|all>",
	Short: "Fetch a bridge quote without depositing",
	Args:  cobra.ExactArgs(1),
	Run:   runBridgeQuote,
}

var bridgeExecuteCmd = &cobra.Command{
	Use:   "execute <amount|all>",
	Short: "Deposit on Base and track the fill on Polygon",
	Args:  cobra.ExactArgs(1),
	Run:   runBridgeExecute,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.AddCommand(bridgeQuoteCmd)
	bridgeCmd.AddCommand(bridgeExecuteCmd)

	bridgeCmd.PersistentFlags().StringVar(&bridgeToken, "token", "USDC", "Token to bridge (must be configured on both chains)")
	bridgeCmd.PersistentFlags().StringVar(&bridgeReceiver, "receiver", "", "Recipient on Polygon (default: own wallet)")
	bridgeExecuteCmd.Flags().BoolVarP(&bridgeNoConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runBridgeQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	env, err := bridgeSetup(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer env.cleanup()

	amount, err := env.resolveAmount(cmd.Context(), args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	receiver, err := resolveReceiver(env.orch, bridgeReceiver)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	quote, err := fetchWithSpinner(cmd.Context(), jsonOutput, " Fetching bridge quote...", func(ctx context.Context) (*types.Quote, error) {
		return env.orch.QuoteBridge(ctx, env.source, env.dest, amount, receiver)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printQuoteJSON(quote)
		return
	}
	displayQuote("BRIDGE QUOTE", quote)
}

func runBridgeExecute(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	env, err := bridgeSetup(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer env.cleanup()

	amount, err := env.resolveAmount(cmd.Context(), args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	receiver, err := resolveReceiver(env.orch, bridgeReceiver)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !bridgeNoConfirm && !jsonOutput {
		fmt.Printf("\nBridging %s %s from Base to Polygon.\n",
			env.source.Format(amount), color.YellowString(env.source.Symbol))
		if !confirm("Proceed with bridge?") {
			fmt.Println("\nBridge cancelled.")
			os.Exit(0)
		}
	}

	outcome, err := trackWithSpinner(cmd.Context(), jsonOutput, " Bridging...", func(ctx context.Context) (*types.Outcome, error) {
		return env.orch.Bridge(ctx, env.source, env.dest, amount, receiver)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printOutcomeJSON(outcome)
	} else {
		displayOutcome(outcome)
	}
	if !outcome.State.Success() {
		os.Exit(1)
	}
}

type bridgeEnv struct {
	orch    *workflow.Orchestrator
	base    *chain.Client
	source  types.Asset
	dest    types.Asset
	cleanup func()
}

// bridgeSetup wires the orchestrator for bridge commands: chain clients
// for both Base and Polygon.
func bridgeSetup(cmd *cobra.Command) (*bridgeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	w, err := loadWallet(cfg)
	if err != nil {
		return nil, err
	}

	baseNet, err := cfg.Network("base")
	if err != nil {
		return nil, err
	}
	polygonNet, err := cfg.Network("polygon")
	if err != nil {
		return nil, err
	}
	source, err := baseNet.Asset(bridgeToken)
	if err != nil {
		return nil, err
	}
	dest, err := polygonNet.Asset(bridgeToken)
	if err != nil {
		return nil, err
	}
	if source.Native || dest.Native {
		return nil, fmt.Errorf("bridging is supported for ERC-20 tokens only")
	}

	log := newLogger(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	baseClient, err := dialChain(ctx, "base", baseNet, log)
	if err != nil {
		return nil, err
	}
	polygonClient, err := dialChain(ctx, "polygon", polygonNet, log)
	if err != nil {
		baseClient.Close()
		return nil, err
	}

	cow := cowswap.NewClient(cfg.CowAPIURL, log)
	bridge := across.NewClient(cfg.AcrossAPIURL, log)
	orch := workflow.New(w, baseClient, polygonClient, cow, bridge, log)
	return &bridgeEnv{
		orch:   orch,
		base:   baseClient,
		source: source,
		dest:   dest,
		cleanup: func() {
			baseClient.Close()
			polygonClient.Close()
		},
	}, nil
}

// resolveAmount parses the amount argument. "all" bridges the full
// balance minus a dust reserve kept behind for future operations.
func (e *bridgeEnv) resolveAmount(parent context.Context, arg string) (*big.Int, error) {
	if arg != "all" {
		return e.source.Parse(arg)
	}

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	balance, err := e.base.Balance(ctx, e.source, e.orch.Signer())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s balance: %w", e.source.Symbol, err)
	}

	amount := new(big.Int).Sub(balance, dustReserve(e.source))
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s balance %s is below the dust reserve", e.source.Symbol, e.source.Format(balance))
	}
	return amount, nil
}

// dustReserve is 0.001 in the token's own decimals.
func dustReserve(asset types.Asset) *big.Int {
	if asset.Decimals <= 3 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals-3)), nil)
}
