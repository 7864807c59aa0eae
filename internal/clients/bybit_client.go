package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient creates an unauthenticated Bybit client for market data.
func NewBybitClient() *bybit.Client {
	return bybit.NewClient()
}
