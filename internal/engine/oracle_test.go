package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

func TestUSDValue(t *testing.T) {
	env := newTestEnv()

	value, err := env.engine.USDValue(context.Background(), weth, units(15))
	require.NoError(t, err)
	assert.Equal(t, units(30000), value, "15 units at $2000")

	value, err = env.engine.USDValue(context.Background(), wbtc, mustUnits("0.5"))
	require.NoError(t, err)
	assert.Equal(t, units(30000), value, "0.5 units at $60000")
}

func TestTokenAmountFromUSD(t *testing.T) {
	env := newTestEnv()

	amount, err := env.engine.TokenAmountFromUSD(context.Background(), weth, units(100))
	require.NoError(t, err)
	assert.Equal(t, mustUnits("0.05"), amount)
}

func TestUSDValue_RoundTrip(t *testing.T) {
	env := newTestEnv()
	// 1234.56789012 USD
	env.prices.setQuote("ETH_USD", domain.Quote{Answer: big.NewInt(123456789012), UpdatedAt: testNow})

	ctx := context.Background()
	for _, qty := range []*uint256.Int{
		uint256.NewInt(1),
		uint256.NewInt(999),
		mustUnits("0.000000123456789"),
		mustUnits("1"),
		mustUnits("15"),
		mustUnits("7777.123456789012345678"),
		units(1_000_000_000),
	} {
		usd, err := env.engine.USDValue(ctx, weth, qty)
		require.NoError(t, err)
		back, err := env.engine.TokenAmountFromUSD(ctx, weth, usd)
		require.NoError(t, err)

		assert.False(t, back.Gt(qty), "round trip of %s gave more: %s", qty.Dec(), back.Dec())
		diff := new(uint256.Int).Sub(qty, back)
		assert.False(t, diff.Gt(uint256.NewInt(2)), "round trip of %s lost %s", qty.Dec(), diff.Dec())
	}
}

func TestPriceOracle_InvalidQuotes(t *testing.T) {
	tests := []struct {
		name  string
		quote domain.Quote
	}{
		{name: "zero answer", quote: domain.Quote{Answer: big.NewInt(0), UpdatedAt: testNow}},
		{name: "negative answer", quote: domain.Quote{Answer: big.NewInt(-2000_00000000), UpdatedAt: testNow}},
		{name: "missing answer", quote: domain.Quote{UpdatedAt: testNow}},
		{name: "stale answer", quote: domain.Quote{Answer: big.NewInt(2000_00000000), UpdatedAt: testNow.Add(-4 * time.Hour)}},
		{name: "no timestamp", quote: domain.Quote{Answer: big.NewInt(2000_00000000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.prices.setQuote("ETH_USD", tt.quote)

			_, err := env.engine.USDValue(context.Background(), weth, units(1))
			require.ErrorIs(t, err, ErrStaleOrInvalidQuote)

			_, err = env.engine.TokenAmountFromUSD(context.Background(), weth, units(1))
			require.ErrorIs(t, err, ErrStaleOrInvalidQuote)
		})
	}
}

func TestPriceOracle_MaxQuoteAge(t *testing.T) {
	old := domain.Quote{Answer: big.NewInt(2000_00000000), UpdatedAt: testNow.Add(-2 * time.Hour)}

	env := newTestEnv(WithMaxQuoteAge(time.Hour))
	env.prices.setQuote("ETH_USD", old)
	_, err := env.engine.USDValue(context.Background(), weth, units(1))
	require.ErrorIs(t, err, ErrStaleOrInvalidQuote)

	env = newTestEnv(WithMaxQuoteAge(0))
	env.prices.setQuote("ETH_USD", old)
	value, err := env.engine.USDValue(context.Background(), weth, units(1))
	require.NoError(t, err)
	assert.Equal(t, units(2000), value)
}

func TestPriceOracle_SourceError(t *testing.T) {
	env := newTestEnv()
	cause := errors.New("feed unreachable")
	env.prices.err = cause

	_, err := env.engine.USDValue(context.Background(), weth, units(1))
	require.ErrorIs(t, err, ErrStaleOrInvalidQuote)
	require.ErrorIs(t, err, cause)
}

func TestPriceOracle_UnsupportedAsset(t *testing.T) {
	env := newTestEnv()

	_, err := env.engine.USDValue(context.Background(), alice, units(1))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
}
