package internal

import (
	"context"
	"fmt"
	"os"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/config"
	"github.com/vadiminshakov/cdpengine/internal/clients"
	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/internal/services/pricer"
)

type priceService interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// serviceProvider builds the platform-specific price service.
type serviceProvider interface {
	Pricer() (priceService, error)
}

// newClient creates the exchange client named by cfg.Platform. In simulate
// mode the client is a static pricer seeded with the configured prices.
func newClient(cfg config.Config) (any, error) {
	switch cfg.Platform {
	case config.PlatformBinance:
		return clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")), nil
	case config.PlatformBybit:
		return clients.NewBybitClient(), nil
	case config.PlatformHyperliquid:
		return clients.NewHyperliquidClient(os.Getenv("HYPERLIQUID_API_URL"))
	case config.PlatformSimulate:
		static := pricer.NewStaticPricer()
		for _, a := range cfg.Assets {
			pair, err := domain.ParsePair(a.Feed)
			if err != nil {
				return nil, err
			}
			static.SetPrice(pair, a.Price)
		}
		return static, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
}

// newServiceProvider creates a new service provider based on the client type.
// This is the single point of truth for dispatching to platform-specific implementations.
func newServiceProvider(client any, logger *zap.Logger) (serviceProvider, error) {
	switch c := client.(type) {
	case *binance.Client:
		return &exchangeProvider{pricer: pricer.NewBinancePricer(c), logger: logger}, nil
	case *bybit.Client:
		return &exchangeProvider{pricer: pricer.NewBybitPricer(c), logger: logger}, nil
	case *clients.HyperliquidClient:
		return &exchangeProvider{pricer: pricer.NewHyperliquidPricer(c.Info()), logger: logger}, nil
	case *pricer.StaticPricer:
		return &simulateProvider{pricer: c}, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

// exchangeProvider retries transient exchange failures.
type exchangeProvider struct {
	pricer pricer.Pricer
	logger *zap.Logger
}

func (p *exchangeProvider) Pricer() (priceService, error) {
	return pricer.NewRetryingPricer(p.pricer, p.logger), nil
}

type simulateProvider struct {
	pricer *pricer.StaticPricer
}

func (p *simulateProvider) Pricer() (priceService, error) {
	return p.pricer, nil
}
