package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
)

var (
	filterChain  string
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List configured tokens",
	Long: `List the tokens configured on each network, with their contract
addresses and decimals.

You can filter tokens by network or symbol.

Examples:
  noctiluca list-tokens
  noctiluca list-tokens --chain base
  noctiluca list-tokens --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by network name")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

type tokenRow struct {
	Network  string `json:"network"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address,omitempty"`
	Decimals uint8  `json:"decimals"`
	Native   bool   `json:"native,omitempty"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var rows []tokenRow
	for network, net := range cfg.Networks {
		if filterChain != "" && !strings.EqualFold(network, filterChain) {
			continue
		}
		for symbol, token := range net.Tokens {
			if filterSymbol != "" && !strings.Contains(strings.ToUpper(symbol), strings.ToUpper(filterSymbol)) {
				continue
			}
			rows = append(rows, tokenRow{
				Network:  network,
				Symbol:   strings.ToUpper(symbol),
				Address:  token.Address,
				Decimals: token.Decimals,
				Native:   token.Native,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Network != rows[j].Network {
			return rows[i].Network < rows[j].Network
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayTokens(rows)
}

func displayTokens(rows []tokenRow) {
	if len(rows) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            CONFIGURED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	networks := 0
	current := ""
	for _, row := range rows {
		if row.Network != current {
			current = row.Network
			networks++
			color.Cyan("\n%s", strings.ToUpper(current))
			fmt.Println(strings.Repeat("-", 90))
		}
		address := row.Address
		if row.Native {
			address = "(native)"
		}
		fmt.Printf("  %-10s  %2d decimals  %s\n",
			color.YellowString(row.Symbol),
			row.Decimals,
			color.HiBlackString(address))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d networks\n\n", len(rows), networks)
}
