package cmd

import (
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
	"noctiluca-tools/pkg/chain"
	"noctiluca-tools/pkg/cowswap"
)

var (
	watchStatus   bool
	watchInterval int
)

// CoW order UIDs are 56 bytes; transaction hashes are 32. The hex length
// tells the two apart.
const (
	orderUIDHexLen = 2 + 2*56
	txHashHexLen   = 2 + 2*32
)

var statusCmd = &cobra.Command{
	Use:   "status <order-uid|tx-hash>",
	Short: "Check the settlement status of a swap order or bridge deposit",
	Long: `Check the settlement status of a submitted order. Pass a CoW order
UID for swaps or the deposit transaction hash for bridges.

Examples:
  noctiluca status 0x1234...abcd
  noctiluca status 0x1234...abcd --watch
  noctiluca status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	id := strings.TrimSpace(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	log := newLogger(cmd)

	var check func(ctx context.Context) (map[string]interface{}, error)
	switch len(id) {
	case orderUIDHexLen:
		cow := cowswap.NewClient(cfg.CowAPIURL, log)
		check = func(ctx context.Context) (map[string]interface{}, error) {
			return checkOrderStatus(ctx, cow, id)
		}
	case txHashHexLen:
		env, err := bridgeStatusEnv(cmd, cfg)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		defer env.cleanup()
		check = func(ctx context.Context) (map[string]interface{}, error) {
			return checkDepositStatus(ctx, env, id)
		}
	default:
		printError(fmt.Errorf("unrecognized identifier: expected a CoW order UID or a transaction hash"))
		os.Exit(1)
	}

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchSettlement(check, id)
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking status..."
		s.Start()
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()
	fields, err := check(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(fields, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displaySettlementStatus(id, fields)
	}
}

func watchSettlement(check func(ctx context.Context) (map[string]interface{}, error), id string) {
	fmt.Printf("\nWatching settlement status (%s)\n", color.CyanString(id))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	poll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		fields, err := check(ctx)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		displaySettlementStatus(id, fields)
	}

	// Check immediately first
	poll()
	for range ticker.C {
		poll()
	}
}

func checkOrderStatus(ctx context.Context, cow *cowswap.Client, uid string) (map[string]interface{}, error) {
	order, err := cow.GetOrder(ctx, uid)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"kind":   "swap order",
		"status": order.Status,
	}
	if order.ExecutedSellAmount != "" && order.ExecutedSellAmount != "0" {
		fields["executed_sell"] = order.ExecutedSellAmount
		fields["executed_buy"] = order.ExecutedBuyAmount
	}
	return fields, nil
}

type statusEnv struct {
	bridge  *across.Client
	base    *chain.Client
	polygon *chain.Client
	cleanup func()
}

func bridgeStatusEnv(cmd *cobra.Command, cfg *config.Config) (*statusEnv, error) {
	log := newLogger(cmd)

	baseNet, err := cfg.Network("base")
	if err != nil {
		return nil, err
	}
	polygonNet, err := cfg.Network("polygon")
	if err != nil {
		return nil, err
	}

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

	return &statusEnv{
		bridge:  across.NewClient(cfg.AcrossAPIURL, log),
		base:    baseClient,
		polygon: polygonClient,
		cleanup: func() {
			baseClient.Close()
			polygonClient.Close()
		},
	}, nil
}

func checkDepositStatus(ctx context.Context, env *statusEnv, txHash string) (map[string]interface{}, error) {
	fields := map[string]interface{}{"kind": "bridge deposit"}

	receipt, err := env.base.ReceiptStatus(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	switch receipt {
	case chain.ReceiptPending:
		fields["status"] = "deposit pending"
		return fields, nil
	case chain.ReceiptReverted:
		fields["status"] = "deposit reverted"
		return fields, nil
	}

	deposit, err := env.bridge.GetDepositStatus(ctx, env.base.ChainID().Uint64(), txHash)
	if err != nil {
		return nil, err
	}
	fields["status"] = deposit.Status
	if deposit.FillTx != "" {
		fields["fill_tx"] = deposit.FillTx
		fillReceipt, err := env.polygon.ReceiptStatus(ctx, common.HexToHash(deposit.FillTx))
		if err == nil && fillReceipt == chain.ReceiptConfirmed {
			fields["status"] = "filled and confirmed"
		}
	}
	return fields, nil
}

func displaySettlementStatus(id string, fields map[string]interface{}) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      SETTLEMENT STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Identifier: %s\n", color.CyanString(id))
	if kind, ok := fields["kind"].(string); ok {
		fmt.Printf("  Kind:       %s\n", kind)
	}
	if status, ok := fields["status"].(string); ok {
		fmt.Printf("  Status:     %s\n", coloredStatusText(status))
	}
	if fill, ok := fields["fill_tx"].(string); ok {
		fmt.Printf("  Fill Tx:    %s\n", color.HiBlackString(fill))
	}
	if sell, ok := fields["executed_sell"].(string); ok {
		fmt.Printf("  Executed:   sold %s, bought %v\n", sell, fields["executed_buy"])
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func coloredStatusText(status string) string {
	switch strings.ToLower(status) {
	case "fulfilled", "filled", "filled and confirmed":
		return color.GreenString(status)
	case "open", "pending", "deposit pending", "presignaturepending":
		return color.YellowString(status)
	case "cancelled", "expired", "deposit reverted":
		return color.RedString(status)
	default:
		return status
	}
}
