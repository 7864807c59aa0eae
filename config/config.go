package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	PlatformSimulate    = "simulate"

	DefaultMaxQuoteAge     = 3 * time.Hour
	DefaultHTTPAddr        = ":8080"
	DefaultTLSCacheDir     = "./data/certs"
	DefaultWALDir          = "./data/events"
	DefaultStatePath       = "./data/state.json"
	DefaultMonitorInterval = time.Minute
)

// Asset is one supported collateral token and the feed that prices it.
type Asset struct {
	Address common.Address
	Symbol  string
	Feed    string
	// Price is the fixed USD price used by the simulate platform.
	Price decimal.Decimal
}

// Grant credits a collateral token balance on first start in simulate mode.
type Grant struct {
	Account common.Address
	Asset   common.Address
	Amount  decimal.Decimal
}

type Config struct {
	Platform          string
	EngineAddress     common.Address
	StablecoinAddress common.Address
	Assets            []Asset
	MaxQuoteAge       time.Duration
	HTTPAddr          string
	TLSDomains        []string
	TLSCacheDir       string
	WALDir            string
	StatePath         string
	MonitorInterval   time.Duration
	Faucet            []Grant
}

// Simulate reports whether prices and tokens are local fixtures.
func (c Config) Simulate() bool {
	return c.Platform == PlatformSimulate
}

// AssetAddresses returns the configured assets in order.
func (c Config) AssetAddresses() []common.Address {
	out := make([]common.Address, len(c.Assets))
	for i, a := range c.Assets {
		out[i] = a.Address
	}
	return out
}

// Feeds returns the price feed of every asset, in asset order.
func (c Config) Feeds() []string {
	out := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		out[i] = a.Feed
	}
	return out
}

// AssetBySymbol finds an asset by its case-insensitive symbol.
func (c Config) AssetBySymbol(symbol string) (Asset, bool) {
	for _, a := range c.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return Asset{}, false
}

type AssetTmp struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Feed    string `yaml:"feed"`
	Price   string `yaml:"price,omitempty"`
}

type GrantTmp struct {
	Account string `yaml:"account"`
	Asset   string `yaml:"asset"`
	Amount  string `yaml:"amount"`
}

// ConfigTmp is the YAML representation of Config.
type ConfigTmp struct {
	Platform          string     `yaml:"platform"`
	EngineAddress     string     `yaml:"engine_address"`
	StablecoinAddress string     `yaml:"stablecoin_address,omitempty"`
	Assets            []AssetTmp `yaml:"assets"`
	MaxQuoteAge       string     `yaml:"max_quote_age,omitempty"`
	HTTPAddr          string     `yaml:"http_addr,omitempty"`
	TLSDomains        []string   `yaml:"tls_domains,omitempty"`
	TLSCacheDir       string     `yaml:"tls_cache_dir,omitempty"`
	WALDir            string     `yaml:"wal_dir,omitempty"`
	StatePath         string     `yaml:"state_path,omitempty"`
	MonitorInterval   string     `yaml:"monitor_interval,omitempty"`
	Faucet            []GrantTmp `yaml:"faucet,omitempty"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return Parse(f)
}

// Parse validates a YAML document and applies defaults.
func Parse(data []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config: %w", err)
	}

	return tmp.toConfig()
}

func (t ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		Platform:    strings.ToLower(strings.TrimSpace(t.Platform)),
		HTTPAddr:    valueOr(t.HTTPAddr, DefaultHTTPAddr),
		TLSDomains:  t.TLSDomains,
		TLSCacheDir: valueOr(t.TLSCacheDir, DefaultTLSCacheDir),
		WALDir:      valueOr(t.WALDir, DefaultWALDir),
		StatePath:   valueOr(t.StatePath, DefaultStatePath),
	}

	switch cfg.Platform {
	case "":
		cfg.Platform = PlatformSimulate
	case PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformSimulate:
	default:
		return Config{}, fmt.Errorf("incorrect 'platform' param in yaml config: %q (binance, bybit, hyperliquid or simulate)", t.Platform)
	}

	var err error
	if cfg.EngineAddress, err = parseAddress("engine_address", t.EngineAddress); err != nil {
		return Config{}, err
	}
	if t.StablecoinAddress != "" {
		if cfg.StablecoinAddress, err = parseAddress("stablecoin_address", t.StablecoinAddress); err != nil {
			return Config{}, err
		}
	}

	if cfg.MaxQuoteAge, err = parseDuration("max_quote_age", t.MaxQuoteAge, DefaultMaxQuoteAge); err != nil {
		return Config{}, err
	}
	if cfg.MonitorInterval, err = parseDuration("monitor_interval", t.MonitorInterval, DefaultMonitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.MonitorInterval <= 0 {
		return Config{}, fmt.Errorf("incorrect 'monitor_interval' param in yaml config: must be positive")
	}

	if len(t.Assets) == 0 {
		return Config{}, fmt.Errorf("'assets' param in yaml config is empty")
	}
	for i, a := range t.Assets {
		asset, err := a.toAsset(i, cfg.Simulate())
		if err != nil {
			return Config{}, err
		}
		for _, existing := range cfg.Assets {
			if existing.Address == asset.Address {
				return Config{}, fmt.Errorf("duplicate 'assets[%d].address' in yaml config: %s", i, a.Address)
			}
		}
		cfg.Assets = append(cfg.Assets, asset)
	}

	for i, g := range t.Faucet {
		grant, err := g.toGrant(i, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg.Faucet = append(cfg.Faucet, grant)
	}
	if len(cfg.Faucet) > 0 && !cfg.Simulate() {
		return Config{}, fmt.Errorf("'faucet' param in yaml config is only allowed with platform simulate")
	}

	return cfg, nil
}

func (a AssetTmp) toAsset(i int, simulate bool) (Asset, error) {
	address, err := parseAddress(fmt.Sprintf("assets[%d].address", i), a.Address)
	if err != nil {
		return Asset{}, err
	}
	if strings.TrimSpace(a.Symbol) == "" {
		return Asset{}, fmt.Errorf("'assets[%d].symbol' param in yaml config is empty", i)
	}
	feed := strings.ToUpper(strings.TrimSpace(a.Feed))
	if !strings.Contains(feed, "_") {
		return Asset{}, fmt.Errorf("incorrect 'assets[%d].feed' param in yaml config: %q (correct format is ETH_USDT)", i, a.Feed)
	}

	asset := Asset{Address: address, Symbol: strings.TrimSpace(a.Symbol), Feed: feed}
	if a.Price != "" {
		asset.Price, err = decimal.NewFromString(a.Price)
		if err != nil {
			return Asset{}, fmt.Errorf("incorrect 'assets[%d].price' param in yaml config (must be a decimal), error: %w", i, err)
		}
	}
	if simulate && !asset.Price.IsPositive() {
		return Asset{}, fmt.Errorf("'assets[%d].price' param in yaml config must be positive with platform simulate", i)
	}

	return asset, nil
}

func (g GrantTmp) toGrant(i int, cfg Config) (Grant, error) {
	account, err := parseAddress(fmt.Sprintf("faucet[%d].account", i), g.Account)
	if err != nil {
		return Grant{}, err
	}

	asset, ok := cfg.AssetBySymbol(g.Asset)
	if !ok {
		asset.Address, err = parseAddress(fmt.Sprintf("faucet[%d].asset", i), g.Asset)
		if err != nil {
			return Grant{}, err
		}
	}
	supported := false
	for _, a := range cfg.Assets {
		supported = supported || a.Address == asset.Address
	}
	if !supported {
		return Grant{}, fmt.Errorf("incorrect 'faucet[%d].asset' param in yaml config: %q is not a configured asset", i, g.Asset)
	}

	amount, err := decimal.NewFromString(g.Amount)
	if err != nil {
		return Grant{}, fmt.Errorf("incorrect 'faucet[%d].amount' param in yaml config (must be a decimal), error: %w", i, err)
	}
	if !amount.IsPositive() {
		return Grant{}, fmt.Errorf("incorrect 'faucet[%d].amount' param in yaml config: must be positive", i)
	}

	return Grant{Account: account, Asset: asset.Address, Amount: amount}, nil
}

func parseAddress(key, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("incorrect '%s' param in yaml config: %q is not a hex address", key, s)
	}
	return common.HexToAddress(s), nil
}

func parseDuration(key, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (correct format is 1h30m), error: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config: must not be negative", key)
	}
	return d, nil
}

func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
