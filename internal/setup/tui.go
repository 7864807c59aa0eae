package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/cdpengine/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const title = "CDP ENGINE CONFIG WIZARD"

// answers collects the wizard input before it is turned into YAML.
type answers struct {
	platform        string
	engineAddress   string
	stablecoin      string
	assets          []config.AssetTmp
	httpAddr        string
	tlsDomains      string
	monitorInterval string
	maxQuoteAge     string
	faucetAccount   string
	faucetAmount    string
}

// RunTUI launches the terminal configuration wizard and writes the result
// to path.
func RunTUI(path string) error {
	a := answers{
		platform:        config.PlatformSimulate,
		engineAddress:   "0x000000000000000000000000000000000000cd9e",
		stablecoin:      "0x0000000000000000000000000000000000005d5c",
		httpAddr:        config.DefaultHTTPAddr,
		monitorInterval: config.DefaultMonitorInterval.String(),
		maxQuoteAge:     config.DefaultMaxQuoteAge.String(),
		faucetAmount:    "10",
	}
	var confirm bool

	step := func(name string) {
		fmt.Print("\033[H\033[2J") // Clear screen
		fmt.Println(headerStyle.Render(title))
		fmt.Println(stepStyle.Render(name))
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Collateral in, stablecoin out.\n"))

	// platform
	fmt.Println(stepStyle.Render("STEP 1: PRICE SOURCE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do collateral prices come from?").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
					huh.NewOption("Simulation (fixed prices)", config.PlatformSimulate),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return err
	}

	// engine identity
	step("STEP 2: ADDRESSES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Engine address").
				Description("Account that holds deposited collateral").
				Value(&a.engineAddress).
				Validate(validateAddress),
			huh.NewInput().
				Title("Stablecoin address").
				Description("Token address used for stablecoin approvals").
				Value(&a.stablecoin).
				Validate(validateAddress),
		),
	).Run()
	if err != nil {
		return err
	}

	// collateral assets
	for more := true; more; {
		step(fmt.Sprintf("STEP 3: COLLATERAL ASSET #%d", len(a.assets)+1))
		asset := config.AssetTmp{}
		fields := []huh.Field{
			huh.NewInput().
				Title("Symbol").
				Value(&asset.Symbol).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("symbol cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Token address").
				Value(&asset.Address).
				Validate(validateAddress),
			huh.NewInput().
				Title("Price feed").
				Description("Must contain underscore (e.g. ETH_USDT)").
				Value(&asset.Feed).
				Validate(validateFeed),
		}
		if a.platform == config.PlatformSimulate {
			fields = append(fields, huh.NewInput().
				Title("Fixed USD price").
				Value(&asset.Price).
				Validate(validatePositive))
		}
		fields = append(fields, huh.NewConfirm().
			Title("Add another asset?").
			Value(&more))

		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
		a.assets = append(a.assets, asset)
	}

	// serving
	step("STEP 4: SERVICE")
	serviceFields := []huh.Field{
		huh.NewInput().
			Title("HTTP listen address").
			Value(&a.httpAddr),
		huh.NewInput().
			Title("TLS domains").
			Description("Comma separated; leave empty to serve plain HTTP").
			Value(&a.tlsDomains),
		huh.NewInput().
			Title("Health scan interval").
			Description("Duration string (e.g. 30s, 1m, 5m)").
			Value(&a.monitorInterval).
			Validate(validateDuration),
		huh.NewInput().
			Title("Max price quote age").
			Description("0 disables the staleness check").
			Value(&a.maxQuoteAge).
			Validate(validateDuration),
	}
	if a.platform == config.PlatformSimulate {
		serviceFields = append(serviceFields,
			huh.NewInput().
				Title("Faucet account").
				Description("Optional account credited with every asset on first start").
				Value(&a.faucetAccount).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					return validateAddress(s)
				}),
			huh.NewInput().
				Title("Faucet amount per asset").
				Value(&a.faucetAmount).
				Validate(validatePositive),
		)
	}
	if err := huh.NewForm(huh.NewGroup(serviceFields...)).Run(); err != nil {
		return err
	}

	// confirmation
	step("FINAL CONFIRMATION")
	symbols := make([]string, 0, len(a.assets))
	for _, asset := range a.assets {
		symbols = append(symbols, asset.Symbol)
	}
	summary := fmt.Sprintf(
		"Platform: %s\nEngine: %s\nAssets: %s\nHTTP: %s\nScan every: %s\n",
		a.platform, a.engineAddress, strings.Join(symbols, ", "), a.httpAddr, a.monitorInterval,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Write(path, a.toConfig()); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting engine...", path)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// Write validates cfg and saves it as YAML.
func Write(path string, cfg config.ConfigTmp) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if _, err := config.Parse(data); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func (a answers) toConfig() config.ConfigTmp {
	cfg := config.ConfigTmp{
		Platform:          a.platform,
		EngineAddress:     strings.TrimSpace(a.engineAddress),
		StablecoinAddress: strings.TrimSpace(a.stablecoin),
		Assets:            make([]config.AssetTmp, 0, len(a.assets)),
		MaxQuoteAge:       a.maxQuoteAge,
		HTTPAddr:          a.httpAddr,
		MonitorInterval:   a.monitorInterval,
	}

	for _, asset := range a.assets {
		asset.Feed = strings.ToUpper(strings.TrimSpace(asset.Feed))
		if a.platform != config.PlatformSimulate {
			asset.Price = ""
		}
		cfg.Assets = append(cfg.Assets, asset)
	}

	for _, d := range strings.Split(a.tlsDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			cfg.TLSDomains = append(cfg.TLSDomains, d)
		}
	}

	if a.platform == config.PlatformSimulate && strings.TrimSpace(a.faucetAccount) != "" {
		for _, asset := range cfg.Assets {
			cfg.Faucet = append(cfg.Faucet, config.GrantTmp{
				Account: strings.TrimSpace(a.faucetAccount),
				Asset:   asset.Symbol,
				Amount:  a.faucetAmount,
			})
		}
	}

	return cfg
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 20-byte hex address")
	}
	return nil
}

func validateFeed(s string) error {
	if s == "" {
		return fmt.Errorf("feed cannot be empty")
	}
	if !strings.Contains(s, "_") {
		return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. ETH_USDT)")
	}
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(s)
	return err
}
