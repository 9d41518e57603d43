package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/wallet"
)

var rootCmd = &cobra.Command{
	Use:   "noctiluca",
	Short: "A CLI for gasless swaps, bridging and VPS ordering",
	Long: `noctiluca is a command-line tool for an autonomous value-transfer
workflow: swap WETH to USDC gaslessly on Base via CoW Protocol, bridge
USDC from Base to Polygon via Across Protocol, and spend the proceeds
on VPS hosting.

Examples:
  noctiluca swap quote 0.01
  noctiluca swap execute 0.01 --yes
  noctiluca bridge execute 25.0
  noctiluca balance
  noctiluca status <order-uid|tx-hash> --watch
  noctiluca vps locations`,
	Version: "0.1.0",
}

// Execute runs the root command. An interrupt cancels the command
// context, which aborts in-flight quote fetches and stops a workflow
// before it submits an order.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

// newLogger routes structured core logs to stderr in verbose mode and
// discards them otherwise; the CLI prints its own output either way.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// loadWallet reads the signing key from the environment.
func loadWallet(cfg *config.Config) (*wallet.Wallet, error) {
	key, err := cfg.RequireKey()
	if err != nil {
		return nil, err
	}
	return wallet.New(key)
}

// dialChain connects a configured network, trying its RPC endpoints in
// order.
func dialChain(ctx context.Context, name string, net config.Network, log zerolog.Logger) (*chain.Client, error) {
	return chain.Dial(ctx, name, net.ChainID, net.RPCURLs, log)
}
