package domain

import "github.com/shopspring/decimal"

// BalanceEntry is one raw wallet-partition balance as reported by the
// exchange, before asset-key normalization.
type BalanceEntry struct {
	RawKey string
	Amount decimal.Decimal
}

// BalanceAggregate maps normalized asset keys to the summed available
// quantity across all wallet partitions.
type BalanceAggregate map[string]decimal.Decimal

// Available returns the aggregated quantity for a normalized asset key.
func (b BalanceAggregate) Available(asset string) decimal.Decimal {
	return b[asset]
}
