package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is the latest observed trade price for a pair. ObservedAt is
// monotonic per pair regardless of whether the source was the stream or a
// point-in-time request.
type PriceQuote struct {
	Pair       string          `json:"pair"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// FresherThan reports whether the quote was observed within the given bound.
func (q PriceQuote) FresherThan(bound time.Duration, now time.Time) bool {
	return now.Sub(q.ObservedAt) <= bound
}
