// Package engine implements the collateralized debt accounting engine:
// collateral and debt ledgers, USD valuation through a price source, the
// health factor, account operations and liquidation.
//
// Every mutating call runs as one unit of work. Ledger writes are staged and
// committed only after all health checks and collaborator calls succeed, so a
// failed call leaves no trace in the ledger. The engine does not lock; the
// host serializes units of work (see Serialized).
package engine

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// LiquidationThreshold is the percentage of collateral value that counts
	// toward solvency: positions must be 200% overcollateralized.
	LiquidationThreshold = 50
	// LiquidationPrecision is the denominator of percentage constants.
	LiquidationPrecision = 100
	// LiquidationBonus is the percentage of seized collateral paid on top to
	// the liquidator.
	LiquidationBonus = 10
	// DefaultMaxQuoteAge is how old a price answer may be before it is stale.
	DefaultMaxQuoteAge = 3 * time.Hour
)

var (
	precision               = uint256.NewInt(1e18)
	additionalFeedPrecision = uint256.NewInt(1e10)
	minHealthFactor         = uint256.NewInt(1e18)
)

// Precision returns the fixed-point scale (1e18) of USD values, debt and
// health factors.
func Precision() *uint256.Int { return precision.Clone() }

// MinHealthFactor returns the health factor below which an account is
// liquidatable.
func MinHealthFactor() *uint256.Int { return minHealthFactor.Clone() }

// MaxHealthFactor returns the health factor reported for accounts without
// debt.
func MaxHealthFactor() *uint256.Int { return new(uint256.Int).SetAllOne() }

// Config is the construction-time configuration of an Engine.
// Assets and PriceFeeds are paired by position.
type Config struct {
	// Address identifies the engine at its collaborators.
	Address     common.Address
	Assets      []common.Address
	PriceFeeds  []string
	PriceSource PriceSource
	Collateral  CollateralTransfer
	Stablecoin  MintAuthority
}

// Option configures optional engine dependencies.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventSinks adds sinks receiving committed events.
func WithEventSinks(sinks ...EventSink) Option {
	return func(e *Engine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithMaxQuoteAge overrides DefaultMaxQuoteAge. Zero disables the check.
func WithMaxQuoteAge(d time.Duration) Option {
	return func(e *Engine) {
		e.oracle.maxAge = d
	}
}

// WithClock overrides the engine clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// Engine is the collateralized debt engine.
type Engine struct {
	address    common.Address
	assets     []common.Address
	feeds      []string
	assetIndex map[common.Address]int

	oracle     *priceOracle
	ledger     *ledger
	collateral CollateralTransfer
	stablecoin MintAuthority

	sinks  []EventSink
	logger *zap.Logger
	clock  func() time.Time
	guard  reentrancyGuard
}

// New creates an engine. The asset and price feed lists must have the same
// length; every listed asset becomes supported collateral.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if len(cfg.Assets) != len(cfg.PriceFeeds) {
		return nil, errors.Wrapf(ErrConfigLengthMismatch, "%d assets, %d price feeds", len(cfg.Assets), len(cfg.PriceFeeds))
	}
	if cfg.PriceSource == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "price source is required")
	}
	if cfg.Collateral == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "collateral transfer is required")
	}
	if cfg.Stablecoin == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "mint authority is required")
	}

	assetIndex := make(map[common.Address]int, len(cfg.Assets))
	feeds := make(map[common.Address]string, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		feed := strings.TrimSpace(cfg.PriceFeeds[i])
		if feed == "" {
			return nil, errors.Wrapf(ErrInvalidConfig, "asset %s has no price feed", asset.Hex())
		}
		if _, dup := assetIndex[asset]; dup {
			return nil, errors.Wrapf(ErrInvalidConfig, "asset %s listed twice", asset.Hex())
		}
		assetIndex[asset] = i
		feeds[asset] = feed
	}

	e := &Engine{
		address:    cfg.Address,
		assets:     append([]common.Address(nil), cfg.Assets...),
		feeds:      append([]string(nil), cfg.PriceFeeds...),
		assetIndex: assetIndex,
		ledger:     newLedger(len(cfg.Assets)),
		collateral: cfg.Collateral,
		stablecoin: cfg.Stablecoin,
		logger:     zap.NewNop(),
		clock:      time.Now,
	}
	e.oracle = &priceOracle{
		source: cfg.PriceSource,
		feeds:  feeds,
		maxAge: DefaultMaxQuoteAge,
		now:    func() time.Time { return e.clock() },
	}

	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("engine", e.address.Hex()))

	return e, nil
}

// Address returns the engine's own account.
func (e *Engine) Address() common.Address { return e.address }

// CollateralAssets returns the supported assets in configuration order.
func (e *Engine) CollateralAssets() []common.Address {
	return append([]common.Address(nil), e.assets...)
}

// PriceFeed returns the price feed configured for asset.
func (e *Engine) PriceFeed(asset common.Address) (string, bool) {
	i, ok := e.assetIndex[asset]
	if !ok {
		return "", false
	}

	return e.feeds[i], true
}

// IsSupported reports whether asset is accepted as collateral.
func (e *Engine) IsSupported(asset common.Address) bool {
	_, ok := e.assetIndex[asset]
	return ok
}
