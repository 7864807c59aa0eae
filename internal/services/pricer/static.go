package pricer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// ErrNoPrice is returned by StaticPricer for pairs without a price.
var ErrNoPrice = errors.New("no price set")

// StaticPricer serves prices set by the operator. It backs simulate mode
// and tests.
type StaticPricer struct {
	mu     sync.RWMutex
	prices map[domain.Pair]decimal.Decimal
}

func NewStaticPricer() *StaticPricer {
	return &StaticPricer{prices: make(map[domain.Pair]decimal.Decimal)}
}

// SetPrice sets the price of pair.
func (p *StaticPricer) SetPrice(pair domain.Pair, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[pair] = price
}

func (p *StaticPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[pair]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrNoPrice, "pair %s", pair)
	}

	return price, nil
}
