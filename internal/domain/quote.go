package domain

import (
	"math/big"
	"time"
)

// QuoteDecimals is the scale of Quote.Answer.
const QuoteDecimals = 8

// Quote is the latest answer of a price feed, scaled to QuoteDecimals.
// Answer is signed: feeds may report zero or negative values and callers
// decide whether such an answer is usable.
type Quote struct {
	Answer    *big.Int
	UpdatedAt time.Time
}
