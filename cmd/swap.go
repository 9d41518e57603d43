package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
	"noctiluca-tools/pkg/across"
	"noctiluca-tools/pkg/cowswap"
	"noctiluca-tools/pkg/types"
	"noctiluca-tools/pkg/workflow"
)

var (
	swapFromToken string
	swapToToken   string
	swapReceiver  string
	swapNoConfirm bool
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Gasless token swap on Base via CoW Protocol",
	Long: `Swap tokens gaslessly on Base using CoW Protocol. The order is
signed off-chain (EIP-712) and settled by solvers; no ETH is spent on
the swap itself, only on the one-time token approval.

Examples:
  noctiluca swap quote 0.01
  noctiluca swap execute 0.01 --yes
  noctiluca swap execute 0.01 --from WETH --to USDC`,
}

var swapQuoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Fetch a swap quote without placing an order",
	Args:  cobra.ExactArgs(1),
	Run:   runSwapQuote,
}

var swapExecuteCmd = &cobra.Command{
	Use:   "execute <amount>",
	Short: "Place a swap order and track it to settlement",
	Args:  cobra.ExactArgs(1),
	Run:   runSwapExecute,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	swapCmd.AddCommand(swapQuoteCmd)
	swapCmd.AddCommand(swapExecuteCmd)

	swapCmd.PersistentFlags().StringVar(&swapFromToken, "from", "WETH", "Token to sell")
	swapCmd.PersistentFlags().StringVar(&swapToToken, "to", "USDC", "Token to buy")
	swapCmd.PersistentFlags().StringVar(&swapReceiver, "receiver", "", "Recipient of the bought tokens (default: own wallet)")
	swapExecuteCmd.Flags().BoolVarP(&swapNoConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwapQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	orch, source, dest, cleanup, err := swapSetup(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer cleanup()

	amountIn, err := source.Parse(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	receiver, err := resolveReceiver(orch, swapReceiver)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	quote, err := fetchWithSpinner(cmd.Context(), jsonOutput, " Fetching quote...", func(ctx context.Context) (*types.Quote, error) {
		return orch.QuoteSwap(ctx, source, dest, amountIn, receiver)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printQuoteJSON(quote)
		return
	}
	displayQuote("SWAP QUOTE", quote)
}

func runSwapExecute(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	orch, source, dest, cleanup, err := swapSetup(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer cleanup()

	amountIn, err := source.Parse(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	receiver, err := resolveReceiver(orch, swapReceiver)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !swapNoConfirm && !jsonOutput {
		fmt.Printf("\nSwapping %s %s for %s on Base.\n",
			source.Format(amountIn), color.YellowString(source.Symbol), color.YellowString(dest.Symbol))
		if !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	outcome, err := trackWithSpinner(cmd.Context(), jsonOutput, " Swapping...", func(ctx context.Context) (*types.Outcome, error) {
		return orch.Swap(ctx, source, dest, amountIn, receiver)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printOutcomeJSON(outcome)
	} else {
		displayOutcome(outcome)
		if outcome.OrderID != "" {
			fmt.Println("Order on CoW Explorer:")
			color.Cyan("  https://explorer.cow.fi/base/orders/%s\n", outcome.OrderID)
		}
	}
	if !outcome.State.Success() {
		os.Exit(1)
	}
}

// swapSetup wires the orchestrator for swap commands: one Base chain
// client, no destination chain.
func swapSetup(cmd *cobra.Command) (orch *workflow.Orchestrator, source, dest types.Asset, cleanup func(), err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, source, dest, nil, err
	}
	w, err := loadWallet(cfg)
	if err != nil {
		return nil, source, dest, nil, err
	}

	base, err := cfg.Network("base")
	if err != nil {
		return nil, source, dest, nil, err
	}
	source, err = base.Asset(swapFromToken)
	if err != nil {
		return nil, source, dest, nil, err
	}
	dest, err = base.Asset(swapToToken)
	if err != nil {
		return nil, source, dest, nil, err
	}
	if source.Native {
		return nil, source, dest, nil, fmt.Errorf("gasless swaps sell ERC-20 tokens only; wrap %s first", source.Symbol)
	}

	log := newLogger(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	baseClient, err := dialChain(ctx, "base", base, log)
	if err != nil {
		return nil, source, dest, nil, err
	}

	cow := cowswap.NewClient(cfg.CowAPIURL, log)
	bridge := across.NewClient(cfg.AcrossAPIURL, log)
	orch = workflow.New(w, baseClient, nil, cow, bridge, log)
	return orch, source, dest, baseClient.Close, nil
}

func resolveReceiver(orch *workflow.Orchestrator, flag string) (receiver common.Address, err error) {
	if flag == "" {
		return orch.Signer(), nil
	}
	if !common.IsHexAddress(flag) {
		return receiver, fmt.Errorf("invalid receiver address: %s", flag)
	}
	return common.HexToAddress(flag), nil
}

// fetchWithSpinner runs a quote fetch behind a spinner unless JSON output
// is requested. The fetch inherits the command context so an interrupt
// cancels it.
func fetchWithSpinner(parent context.Context, jsonOutput bool, suffix string, fn func(ctx context.Context) (*types.Quote, error)) (*types.Quote, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = suffix
		s.Start()
	}
	ctx, cancel := context.WithTimeout(parent, 60*time.Second)
	defer cancel()
	quote, err := fn(ctx)
	if !jsonOutput {
		s.Stop()
	}
	return quote, err
}

// trackWithSpinner runs a full workflow invocation behind a spinner. The
// workflow bounds its own tracking deadline, so the command context only
// carries interrupts, which abort the run before any order is submitted.
func trackWithSpinner(parent context.Context, jsonOutput bool, suffix string, fn func(ctx context.Context) (*types.Outcome, error)) (*types.Outcome, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = suffix
		s.Start()
	}
	outcome, err := fn(parent)
	if !jsonOutput {
		s.Stop()
	}
	return outcome, err
}

func displayQuote(title string, quote *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     %s", title)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Sell:       %s %s\n", quote.Source.Format(quote.AmountIn), color.YellowString(quote.Source.Symbol))
	fmt.Printf("  Receive:    ~%s %s\n", quote.Dest.Format(quote.AmountOut), color.YellowString(quote.Dest.Symbol))
	if quote.Fee != nil && quote.Fee.Sign() > 0 {
		fmt.Printf("  Fee:        %s %s\n", quote.Source.Format(quote.Fee), quote.Source.Symbol)
	}
	fmt.Printf("  Valid for:  %s\n", time.Until(quote.Deadline).Round(time.Second))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayOutcome(outcome *types.Outcome) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	if outcome.State.Success() {
		color.Green("                     SETTLED")
	} else {
		color.Red("                     NOT SETTLED")
	}
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  State:    %s\n", coloredState(outcome.State))
	if outcome.OrderID != "" {
		fmt.Printf("  Order:    %s\n", color.CyanString(outcome.OrderID))
	}
	if outcome.TxHash != "" {
		fmt.Printf("  Tx:       %s\n", color.HiBlackString(outcome.TxHash))
	}
	if outcome.Reason != "" {
		fmt.Printf("  Detail:   %s\n", outcome.Reason)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func coloredState(state types.SettlementState) string {
	switch {
	case state.Success():
		return color.GreenString(string(state))
	case state == types.StatePending, state == types.StateSubmitted, state == types.StatePartiallyFilled:
		return color.YellowString(string(state))
	default:
		return color.RedString(string(state))
	}
}

func printQuoteJSON(quote *types.Quote) {
	output := map[string]interface{}{
		"protocol":   string(quote.Protocol),
		"amount_in":  quote.Source.Format(quote.AmountIn),
		"token_in":   quote.Source.Symbol,
		"amount_out": quote.Dest.Format(quote.AmountOut),
		"token_out":  quote.Dest.Symbol,
		"deadline":   quote.Deadline.Format(time.RFC3339),
	}
	jsonData, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(jsonData))
}

func printOutcomeJSON(outcome *types.Outcome) {
	output := map[string]interface{}{
		"state":    string(outcome.State),
		"order_id": outcome.OrderID,
		"tx_hash":  outcome.TxHash,
		"reason":   outcome.Reason,
		"success":  outcome.State.Success(),
	}
	jsonData, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(jsonData))
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
