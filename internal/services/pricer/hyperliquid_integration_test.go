//go:build integration

package pricer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cdpengine/internal/clients"
	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// TestHyperliquidPricer_GetPrice_Integration calls the real Hyperliquid Info API.
// To run this test, use: go test -tags=integration -v ./...
func TestHyperliquidPricer_GetPrice_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := clients.NewHyperliquidClient("")
	require.NoError(t, err)
	pricer := NewHyperliquidPricer(client.Info())

	pair := domain.Pair{From: "ETH", To: "USD"}
	price, err := pricer.GetPrice(context.Background(), pair)
	require.NoError(t, err)
	require.True(t, price.GreaterThan(decimal.Zero), "Expected price > 0 for %s, got %s", pair.String(), price.String())
}
