package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"noctiluca-tools/config"
	"noctiluca-tools/pkg/hosting"
)

var (
	vpsProductID  int
	vpsOSID       int
	vpsHostname   string
	vpsSSHKeyFile string
	vpsNoConfirm  bool
)

var vpsCmd = &cobra.Command{
	Use:   "vps",
	Short: "VPS hosting catalog and ordering",
	Long: `Browse the hosting provider's catalog and order a VPS paid through
its crypto processor with bridged USDC.

Credentials use the email:password format, set via the
NOCTILUCA_HOSTING_CREDENTIALS environment variable or the
hosting_credentials config key.

Examples:
  noctiluca vps locations
  noctiluca vps products 122
  noctiluca vps payment-methods
  noctiluca vps order --product 42 --os 1 --hostname my-vps`,
}

var vpsLocationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List datacenter locations",
	Args:  cobra.NoArgs,
	Run:   runVPSLocations,
}

var vpsProductsCmd = &cobra.Command{
	Use:   "products <location-id>",
	Short: "List plans available in a location",
	Args:  cobra.ExactArgs(1),
	Run:   runVPSProducts,
}

var vpsPaymentMethodsCmd = &cobra.Command{
	Use:   "payment-methods",
	Short: "List accepted payment processors",
	Args:  cobra.NoArgs,
	Run:   runVPSPaymentMethods,
}

var vpsOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Order a VPS billed monthly through the crypto processor",
	Args:  cobra.NoArgs,
	Run:   runVPSOrder,
}

func init() {
	rootCmd.AddCommand(vpsCmd)
	vpsCmd.AddCommand(vpsLocationsCmd)
	vpsCmd.AddCommand(vpsProductsCmd)
	vpsCmd.AddCommand(vpsPaymentMethodsCmd)
	vpsCmd.AddCommand(vpsOrderCmd)

	vpsOrderCmd.Flags().IntVar(&vpsProductID, "product", 0, "Product ID (see 'vps products')")
	vpsOrderCmd.Flags().IntVar(&vpsOSID, "os", 0, "Operating system ID")
	vpsOrderCmd.Flags().StringVar(&vpsHostname, "hostname", "", "Hostname for the new VPS")
	vpsOrderCmd.Flags().StringVar(&vpsSSHKeyFile, "ssh-key-file", "", "Path to an SSH public key to install")
	vpsOrderCmd.Flags().BoolVarP(&vpsNoConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// hostingClient builds the API client from configured credentials.
func hostingClient(cmd *cobra.Command) (*hosting.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.HostingCreds == "" {
		return nil, fmt.Errorf("no hosting credentials found. Set NOCTILUCA_HOSTING_CREDENTIALS (email:password)")
	}
	creds, err := hosting.ParseCredentials(cfg.HostingCreds)
	if err != nil {
		return nil, err
	}
	return hosting.NewClient(cfg.HostingAPIURL, creds, newLogger(cmd)), nil
}

func runVPSLocations(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	client, err := hostingClient(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	locations, err := hostingCall(jsonOutput, " Fetching locations...", client.Locations)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(locations, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     VPS LOCATIONS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	for _, loc := range locations {
		if loc.OutOfStock {
			color.Red("  [%3d] %s (%s) - out of stock", loc.ID, loc.Name, loc.Country)
		} else {
			fmt.Printf("  [%3d] %s (%s)\n", loc.ID, loc.Name, loc.Country)
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runVPSProducts(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	locationID, err := strconv.Atoi(args[0])
	if err != nil {
		printError(fmt.Errorf("invalid location ID: %s", args[0]))
		os.Exit(1)
	}

	client, err := hostingClient(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	products, err := hostingCall(jsonOutput, " Fetching products...", func(ctx context.Context) (json.RawMessage, error) {
		return client.Products(ctx, locationID)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var pretty map[string]interface{}
	if json.Unmarshal(products, &pretty) == nil {
		jsonData, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	fmt.Println(string(products))
}

func runVPSPaymentMethods(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	client, err := hostingClient(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	methods, err := hostingCall(jsonOutput, " Fetching payment methods...", client.PaymentMethods)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(methods, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\nAccepted payment methods:")
	for _, method := range methods {
		if method == hosting.PaymentMethodCrypto {
			color.Green("  * %s (crypto, Polygon USDC)", method)
		} else {
			fmt.Printf("    %s\n", method)
		}
	}
	fmt.Println()
}

func runVPSOrder(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if vpsProductID <= 0 || vpsHostname == "" {
		printError(fmt.Errorf("--product and --hostname are required"))
		os.Exit(1)
	}

	client, err := hostingClient(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	item := hosting.OrderItem{
		ProductID: vpsProductID,
		OS:        vpsOSID,
		Hostname:  vpsHostname,
	}
	if vpsSSHKeyFile != "" {
		key, err := os.ReadFile(vpsSSHKeyFile)
		if err != nil {
			printError(fmt.Errorf("failed to read SSH key: %w", err))
			os.Exit(1)
		}
		item.SSHPublicKey = strings.TrimSpace(string(key))
	}

	if !vpsNoConfirm && !jsonOutput {
		fmt.Printf("\nOrdering product %d as %s, billed monthly via %s.\n",
			item.ProductID, color.CyanString(item.Hostname), hosting.PaymentMethodCrypto)
		if !confirm("Place order?") {
			fmt.Println("\nOrder cancelled.")
			os.Exit(0)
		}
	}

	result, err := hostingCall(jsonOutput, " Placing order...", func(ctx context.Context) (json.RawMessage, error) {
		return client.Order(ctx, item)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		printSuccess(color.GreenString("Order placed."))
	}
	var pretty map[string]interface{}
	if json.Unmarshal(result, &pretty) == nil {
		jsonData, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	fmt.Println(string(result))
}

// hostingCall runs one API call behind a spinner unless JSON output is
// requested.
func hostingCall[T any](jsonOutput bool, suffix string, fn func(ctx context.Context) (T, error)) (T, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = suffix
		s.Start()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	result, err := fn(ctx)
	if !jsonOutput {
		s.Stop()
	}
	return result, err
}
