package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// priceOracle converts quantities to and from 18-decimal USD using 8-decimal
// feed answers.
type priceOracle struct {
	source PriceSource
	feeds  map[common.Address]string
	maxAge time.Duration
	now    func() time.Time
}

// price returns the asset price scaled to 18 decimals.
func (o *priceOracle) price(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	feed, ok := o.feeds[asset]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAsset, "asset %s", asset.Hex())
	}

	quote, err := o.source.LatestQuote(ctx, feed)
	if err != nil {
		return nil, withCause(ErrStaleOrInvalidQuote, err, "feed %s", feed)
	}
	if quote.Answer == nil || quote.Answer.Sign() <= 0 {
		return nil, errors.Wrapf(ErrStaleOrInvalidQuote, "feed %s answered %v", feed, quote.Answer)
	}
	if o.maxAge > 0 {
		if quote.UpdatedAt.IsZero() {
			return nil, errors.Wrapf(ErrStaleOrInvalidQuote, "feed %s answer has no timestamp", feed)
		}
		if age := o.now().Sub(quote.UpdatedAt); age > o.maxAge {
			return nil, errors.Wrapf(ErrStaleOrInvalidQuote, "feed %s answer is %s old", feed, age.Truncate(time.Second))
		}
	}

	answer, overflow := uint256.FromBig(quote.Answer)
	if overflow {
		return nil, errors.Wrapf(ErrOverflow, "feed %s answer", feed)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(answer, additionalFeedPrecision)
	if overflow {
		return nil, errors.Wrapf(ErrOverflow, "feed %s answer", feed)
	}

	return scaled, nil
}

// valueInUSD returns price * 1e10 * amount / 1e18.
func (o *priceOracle) valueInUSD(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	price, err := o.price(ctx, asset)
	if err != nil {
		return nil, err
	}

	value, overflow := new(uint256.Int).MulDivOverflow(price, amount, precision)
	if overflow {
		return nil, errors.Wrapf(ErrOverflow, "usd value of %s %s", amount.Dec(), asset.Hex())
	}

	return value, nil
}

// quantityForUSD returns usd * 1e18 / (price * 1e10).
func (o *priceOracle) quantityForUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	price, err := o.price(ctx, asset)
	if err != nil {
		return nil, err
	}

	amount, overflow := new(uint256.Int).MulDivOverflow(usd, precision, price)
	if overflow {
		return nil, errors.Wrapf(ErrOverflow, "amount of %s for usd %s", asset.Hex(), usd.Dec())
	}

	return amount, nil
}

// USDValue returns the 18-decimal USD value of amount units of asset.
func (e *Engine) USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.oracle.valueInUSD(ctx, asset, amount)
}

// TokenAmountFromUSD returns how many units of asset are worth usd
// (18-decimal) at the current price.
func (e *Engine) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	return e.oracle.quantityForUSD(ctx, asset, usd)
}
