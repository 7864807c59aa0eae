package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// PriceSource returns the latest answer of a price feed, scaled to
// domain.QuoteDecimals.
type PriceSource interface {
	LatestQuote(ctx context.Context, feed string) (domain.Quote, error)
}

// CollateralTransfer moves collateral assets. Calls act on behalf of the
// engine: TransferFrom spends the engine's allowance and Transfer sends from
// the engine's own balance. A false result is a failed transfer.
type CollateralTransfer interface {
	TransferFrom(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) (bool, error)
	Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) (bool, error)
}

// MintAuthority controls the stablecoin supply. Only the engine holds it.
// Burn destroys stablecoin held by the engine itself.
type MintAuthority interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error)
	Burn(ctx context.Context, amount *uint256.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error)
}

// EventSink receives events of committed units of work.
type EventSink interface {
	Publish(event domain.Event) error
}
