// Package pricer provides price sources for the engine. Exchange pricers
// return the last traded price of a pair; Source turns a Pricer into an
// engine price source by scaling the price to an 8-decimal quote.
package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// Pricer returns the current price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// Source adapts a Pricer to the engine's price source. Feed ids are pairs
// in BASE_QUOTE form.
type Source struct {
	pricer Pricer
	now    func() time.Time
}

// NewSource wraps p. Quotes are stamped with the time they were fetched.
func NewSource(p Pricer) *Source {
	return &Source{pricer: p, now: time.Now}
}

// LatestQuote fetches the price of feed and converts it to an 8-decimal answer.
func (s *Source) LatestQuote(ctx context.Context, feed string) (domain.Quote, error) {
	pair, err := domain.ParsePair(feed)
	if err != nil {
		return domain.Quote{}, err
	}

	price, err := s.pricer.GetPrice(ctx, pair)
	if err != nil {
		return domain.Quote{}, errors.Wrapf(err, "get price of %s", pair)
	}

	return QuoteFromDecimal(price, s.now()), nil
}

// QuoteFromDecimal truncates price to domain.QuoteDecimals and returns it as
// a quote answer.
func QuoteFromDecimal(price decimal.Decimal, at time.Time) domain.Quote {
	return domain.Quote{
		Answer:    price.Shift(domain.QuoteDecimals).Truncate(0).BigInt(),
		UpdatedAt: at,
	}
}
