package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"noctiluca-tools/pkg/hosting"
	"noctiluca-tools/pkg/types"
)

// Token is a configured asset on a network.
type Token struct {
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	Native   bool   `mapstructure:"native"`
}

// Network is a configured chain: its id, an ordered list of RPC endpoints
// to try, and the tokens the tool knows about on it.
type Network struct {
	ChainID uint64           `mapstructure:"chain_id"`
	RPCURLs []string         `mapstructure:"rpc_urls"`
	Tokens  map[string]Token `mapstructure:"tokens"`
}

// Config holds the application configuration. The signing key is read
// from the environment only and never written to disk by this tool.
type Config struct {
	PrivateKey    string
	Networks      map[string]Network
	CowAPIURL     string
	AcrossAPIURL  string
	HostingAPIURL string
	HostingCreds  string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".noctiluca")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from environment variables
	viper.SetEnvPrefix("NOCTILUCA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	var networks map[string]Network
	if err := viper.UnmarshalKey("networks", &networks); err != nil {
		return nil, fmt.Errorf("invalid networks configuration: %w", err)
	}

	cfg := &Config{
		PrivateKey:    os.Getenv("EVM_PRIVATE_KEY"),
		Networks:      networks,
		CowAPIURL:     viper.GetString("cow_api_url"),
		AcrossAPIURL:  viper.GetString("across_api_url"),
		HostingAPIURL: viper.GetString("hosting_api_url"),
		HostingCreds:  viper.GetString("hosting_credentials"),
	}

	globalConfig = cfg
	return cfg, nil
}

// setDefaults configures the Base and Polygon mainnet deployments the tool
// targets out of the box. RPC endpoints are ordered by observed reliability.
func setDefaults() {
	viper.SetDefault("cow_api_url", "https://api.cow.fi/base/api/v1")
	viper.SetDefault("across_api_url", "https://app.across.to/api")
	viper.SetDefault("hosting_api_url", hosting.DefaultAPIURL)

	viper.SetDefault("networks.base.chain_id", 8453)
	viper.SetDefault("networks.base.rpc_urls", []string{
		"https://base-pokt.nodies.app",
		"https://base.drpc.org",
		"https://base-rpc.publicnode.com",
	})
	viper.SetDefault("networks.base.tokens", map[string]Token{
		"ETH":  {Decimals: 18, Native: true},
		"WETH": {Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		"USDC": {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	})

	viper.SetDefault("networks.polygon.chain_id", 137)
	viper.SetDefault("networks.polygon.rpc_urls", []string{
		"https://polygon-rpc.com",
		"https://polygon.drpc.org",
	})
	viper.SetDefault("networks.polygon.tokens", map[string]Token{
		"POL":  {Decimals: 18, Native: true},
		"USDC": {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
	})
}

// RequireKey returns the configured private key or an error naming the
// environment variable to set.
func (c *Config) RequireKey() (string, error) {
	if c.PrivateKey == "" {
		return "", fmt.Errorf("no signing key found. Set the EVM_PRIVATE_KEY environment variable")
	}
	return c.PrivateKey, nil
}

// Network looks up a configured network by name.
func (c *Config) Network(name string) (Network, error) {
	net, ok := c.Networks[name]
	if !ok {
		return Network{}, fmt.Errorf("network %q is not configured", name)
	}
	if len(net.RPCURLs) == 0 {
		return Network{}, fmt.Errorf("network %q has no RPC endpoints", name)
	}
	return net, nil
}

// Asset resolves a configured token symbol into a typed asset.
func (n Network) Asset(symbol string) (types.Asset, error) {
	token, ok := n.Tokens[strings.ToUpper(symbol)]
	if !ok {
		return types.Asset{}, fmt.Errorf("token %q is not configured on chain %d", symbol, n.ChainID)
	}
	if !token.Native && !common.IsHexAddress(token.Address) {
		return types.Asset{}, fmt.Errorf("token %q has an invalid address: %s", symbol, token.Address)
	}
	return types.Asset{
		ChainID:  n.ChainID,
		Address:  common.HexToAddress(token.Address),
		Symbol:   strings.ToUpper(symbol),
		Decimals: token.Decimals,
		Native:   token.Native,
	}, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
