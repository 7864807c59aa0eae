// Package domain defines the data structures shared by the engine, its
// collaborators and the storage layers.
package domain

import (
	"fmt"
	"strings"
)

// Pair is a price feed identifier of the form BASE_QUOTE, e.g. ETH_USDT.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// ParsePair parses a feed identifier such as "ETH_USDT".
func ParsePair(feed string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(feed), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid feed %q, expected BASE_QUOTE", feed)
	}

	return Pair{From: strings.ToUpper(parts[0]), To: strings.ToUpper(parts[1])}, nil
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. ETHUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
