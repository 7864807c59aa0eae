package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simulateYAML = `
platform: simulate
engine_address: "0x00000000000000000000000000000000000000e1"
stablecoin_address: "0x00000000000000000000000000000000000000d1"
assets:
  - address: "0x00000000000000000000000000000000000000a1"
    symbol: WETH
    feed: eth_usdt
    price: "2000"
  - address: "0x00000000000000000000000000000000000000a2"
    symbol: WBTC
    feed: BTC_USDT
    price: "60000.5"
max_quote_age: 1h
monitor_interval: 30s
tls_domains: [cdp.example.com]
faucet:
  - account: "0x00000000000000000000000000000000000000b1"
    asset: weth
    amount: "10"
  - account: "0x00000000000000000000000000000000000000b2"
    asset: "0x00000000000000000000000000000000000000a2"
    amount: "0.5"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(simulateYAML))
	require.NoError(t, err)

	weth := common.HexToAddress("0xa1")
	wbtc := common.HexToAddress("0xa2")

	assert.True(t, cfg.Simulate())
	assert.Equal(t, common.HexToAddress("0xe1"), cfg.EngineAddress)
	assert.Equal(t, common.HexToAddress("0xd1"), cfg.StablecoinAddress)
	assert.Equal(t, []common.Address{weth, wbtc}, cfg.AssetAddresses())
	assert.Equal(t, []string{"ETH_USDT", "BTC_USDT"}, cfg.Feeds())
	assert.True(t, decimal.RequireFromString("60000.5").Equal(cfg.Assets[1].Price))
	assert.Equal(t, time.Hour, cfg.MaxQuoteAge)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
	assert.Equal(t, []string{"cdp.example.com"}, cfg.TLSDomains)

	require.Len(t, cfg.Faucet, 2)
	assert.Equal(t, weth, cfg.Faucet[0].Asset, "resolved by symbol")
	assert.Equal(t, wbtc, cfg.Faucet[1].Asset)
	assert.Equal(t, "0.5", cfg.Faucet[1].Amount.String())

	asset, ok := cfg.AssetBySymbol("wbtc")
	require.True(t, ok)
	assert.Equal(t, wbtc, asset.Address)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
platform: binance
engine_address: "0x00000000000000000000000000000000000000e1"
assets:
  - address: "0x00000000000000000000000000000000000000a1"
    symbol: WETH
    feed: ETH_USDT
`))
	require.NoError(t, err)

	assert.False(t, cfg.Simulate())
	assert.Equal(t, DefaultMaxQuoteAge, cfg.MaxQuoteAge)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultTLSCacheDir, cfg.TLSCacheDir)
	assert.Equal(t, DefaultWALDir, cfg.WALDir)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, DefaultMonitorInterval, cfg.MonitorInterval)
	assert.Equal(t, common.Address{}, cfg.StablecoinAddress)
}

func TestParse_ZeroQuoteAgeDisablesCheck(t *testing.T) {
	cfg, err := Parse([]byte(`
engine_address: "0x00000000000000000000000000000000000000e1"
max_quote_age: 0s
assets:
  - {address: "0x00000000000000000000000000000000000000a1", symbol: WETH, feed: ETH_USD, price: "1"}
`))
	require.NoError(t, err)
	assert.Equal(t, PlatformSimulate, cfg.Platform, "simulate is the default platform")
	assert.Zero(t, cfg.MaxQuoteAge)
}

func TestParse_Errors(t *testing.T) {
	const engine = `engine_address: "0x00000000000000000000000000000000000000e1"` + "\n"
	const asset = "assets:\n  - {address: \"0x00000000000000000000000000000000000000a1\", symbol: WETH, feed: ETH_USD, price: \"1\"}\n"

	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{name: "unknown platform", yaml: "platform: kraken\n" + engine + asset, wantKey: "'platform'"},
		{name: "missing engine address", yaml: asset, wantKey: "'engine_address'"},
		{name: "bad stablecoin address", yaml: engine + "stablecoin_address: nope\n" + asset, wantKey: "'stablecoin_address'"},
		{name: "no assets", yaml: engine, wantKey: "'assets'"},
		{name: "short asset address", yaml: engine + "assets:\n  - {address: \"0xa1\", symbol: WETH, feed: ETHUSD, price: \"1\"}\n", wantKey: "'assets[0].address'"},
		{name: "feed without separator", yaml: engine + "assets:\n  - {address: \"0x00000000000000000000000000000000000000a1\", symbol: WETH, feed: ETHUSD, price: \"1\"}\n", wantKey: "'assets[0].feed'"},
		{name: "missing symbol", yaml: engine + "assets:\n  - {address: \"0x00000000000000000000000000000000000000a1\", feed: ETH_USD, price: \"1\"}\n", wantKey: "'assets[0].symbol'"},
		{name: "simulate without price", yaml: engine + "assets:\n  - {address: \"0x00000000000000000000000000000000000000a1\", symbol: WETH, feed: ETH_USD}\n", wantKey: "'assets[0].price'"},
		{name: "duplicate asset", yaml: engine + asset + "  - {address: \"0x00000000000000000000000000000000000000a1\", symbol: WETH2, feed: ETH_USD, price: \"1\"}\n", wantKey: "'assets[1].address'"},
		{name: "bad duration", yaml: engine + asset + "max_quote_age: soon\n", wantKey: "'max_quote_age'"},
		{name: "negative duration", yaml: engine + asset + "monitor_interval: -1s\n", wantKey: "'monitor_interval'"},
		{name: "zero monitor interval", yaml: engine + asset + "monitor_interval: 0s\n", wantKey: "'monitor_interval'"},
		{name: "faucet unknown asset", yaml: engine + asset + "faucet:\n  - {account: \"0x00000000000000000000000000000000000000b1\", asset: WBTC, amount: \"1\"}\n", wantKey: "'faucet[0].asset'"},
		{name: "faucet unsupported address", yaml: engine + asset + "faucet:\n  - {account: \"0x00000000000000000000000000000000000000b1\", asset: \"0x00000000000000000000000000000000000000a9\", amount: \"1\"}\n", wantKey: "'faucet[0].asset'"},
		{name: "faucet zero amount", yaml: engine + asset + "faucet:\n  - {account: \"0x00000000000000000000000000000000000000b1\", asset: WETH, amount: \"0\"}\n", wantKey: "'faucet[0].amount'"},
		{name: "faucet outside simulate", yaml: "platform: bybit\n" + engine + "assets:\n  - {address: \"0x00000000000000000000000000000000000000a1\", symbol: WETH, feed: ETH_USDT}\nfaucet:\n  - {account: \"0x00000000000000000000000000000000000000b1\", asset: WETH, amount: \"1\"}\n", wantKey: "'faucet'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simulateYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Assets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simulateYAML), 0o644))

	f, err := ParseFlags([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, Flags{Path: path}, f)

	f, err = ParseFlags([]string{"--config", path, "--setup"})
	require.NoError(t, err)
	assert.True(t, f.Setup)

	f, err = ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	require.NoError(t, err)
	assert.True(t, f.Setup, "missing config starts the wizard")

	_, err = ParseFlags([]string{"--unknown"})
	require.Error(t, err)
}
