package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show wallet balances on all configured networks",
	Long: `Show native and token balances for the wallet on every configured
network.

Examples:
  noctiluca balance
  noctiluca balance --json`,
	Run: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

type balanceEntry struct {
	Network string `json:"network"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
	Error   string `json:"error,omitempty"`
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	w, err := loadWallet(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	log := newLogger(cmd)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Reading balances..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	networkNames := make([]string, 0, len(cfg.Networks))
	for name := range cfg.Networks {
		networkNames = append(networkNames, name)
	}
	sort.Strings(networkNames)

	var entries []balanceEntry
	for _, name := range networkNames {
		net := cfg.Networks[name]
		client, err := dialChain(ctx, name, net, log)
		if err != nil {
			entries = append(entries, balanceEntry{Network: name, Error: err.Error()})
			continue
		}

		symbols := make([]string, 0, len(net.Tokens))
		for symbol := range net.Tokens {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		for _, symbol := range symbols {
			asset, err := net.Asset(symbol)
			if err != nil {
				entries = append(entries, balanceEntry{Network: name, Token: symbol, Error: err.Error()})
				continue
			}
			amount, err := client.Balance(ctx, asset, w.Address())
			if err != nil {
				entries = append(entries, balanceEntry{Network: name, Token: symbol, Error: err.Error()})
				continue
			}
			entries = append(entries, balanceEntry{Network: name, Token: symbol, Amount: asset.Format(amount)})
		}
		client.Close()
	}

	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		output := map[string]interface{}{
			"address":  w.Address().Hex(),
			"balances": entries,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     WALLET BALANCES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Address: %s\n", color.CyanString(w.Address().Hex()))

	current := ""
	for _, entry := range entries {
		if entry.Network != current {
			current = entry.Network
			fmt.Printf("\n  %s:\n", strings.ToUpper(current))
		}
		if entry.Error != "" {
			if entry.Token == "" {
				color.Red("    unreachable: %s", entry.Error)
			} else {
				color.Red("    %-6s read failed: %s", entry.Token, entry.Error)
			}
			continue
		}
		fmt.Printf("    %-6s %s\n", entry.Token, entry.Amount)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
