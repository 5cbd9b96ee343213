// Package balance queries and normalizes account balances across wallet
// partitions so sufficiency checks see one available quantity per asset.
package balance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"trailguard/internal/domain"
)

// knownQuotes are the quote currencies the exchange appends to pair names,
// checked longest first so USDT is not mistaken for USD.
var knownQuotes = []string{
	"USDT", "USDC", "XBT", "USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "ETH",
	"ZUSD", "ZEUR", "ZGBP", "ZJPY", "ZCAD", "ZAUD", "XXBT", "XETH",
}

// assetAliases collapses the exchange's padded vendor names onto the plain
// asset codes used in pair names.
var assetAliases = map[string]string{
	"XXBT": "XBT",
	"XETH": "ETH",
	"XXRP": "XRP",
	"XLTC": "LTC",
	"XXLM": "XLM",
	"XXMR": "XMR",
	"XZEC": "ZEC",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
	"ZJPY": "JPY",
	"ZCAD": "CAD",
	"ZAUD": "AUD",
}

// partitionSuffixes mark wallet partitions (funding, staking, margin,
// bonded) that hold the same economic asset under a different key.
var partitionSuffixes = []string{".F", ".S", ".M", ".B", ".HOLD"}

func init() {
	sort.Slice(knownQuotes, func(i, j int) bool { return len(knownQuotes[i]) > len(knownQuotes[j]) })
}

// BaseAsset splits a pair symbol into its base asset by stripping the
// longest known quote suffix. Returns an error for unparseable pairs so the
// caller can fail safe.
func BaseAsset(pair string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(pair))
	for _, quote := range knownQuotes {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return NormalizeAsset(strings.TrimSuffix(symbol, quote)), nil
		}
	}
	return "", fmt.Errorf("cannot determine base asset of pair %q", pair)
}

// NormalizeAsset strips wallet-partition suffixes and vendor padding so
// balances reported under different internal keys collapse to one key.
func NormalizeAsset(raw string) string {
	asset := strings.ToUpper(strings.TrimSpace(raw))

	for _, suffix := range partitionSuffixes {
		if strings.HasSuffix(asset, suffix) {
			asset = strings.TrimSuffix(asset, suffix)
			break
		}
	}

	if alias, ok := assetAliases[asset]; ok {
		return alias
	}
	return asset
}

type balanceClient interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Inspector answers "is at least this much of the base asset available"
// without caring which wallet partition holds it.
type Inspector struct {
	client balanceClient
}

// NewInspector builds a balance inspector over the signing client.
func NewInspector(client balanceClient) *Inspector {
	return &Inspector{client: client}
}

// Check is the outcome of a sufficiency check, including the entries that
// contributed to the total for diagnostic logging.
type Check struct {
	Sufficient   bool
	Available    decimal.Decimal
	Contributing []domain.BalanceEntry
}

// CheckSufficient sums all balance entries normalizing to the pair's base
// asset and compares against the required volume. Implemented for SELL
// directions only; BUY-side quote-currency sizing is a documented
// limitation of this version, and BUY checks always pass. Insufficiency is
// a normal outcome, never an error; only transport or parse failures error.
func (i *Inspector) CheckSufficient(ctx context.Context, pair string, direction domain.Direction, volume decimal.Decimal) (Check, error) {
	if direction == domain.DirectionBuy {
		return Check{Sufficient: true}, nil
	}

	base, err := BaseAsset(pair)
	if err != nil {
		return Check{}, err
	}

	balances, err := i.client.Balances(ctx)
	if err != nil {
		return Check{}, err
	}

	check := Check{Available: decimal.Zero}
	for rawKey, amount := range balances {
		if NormalizeAsset(rawKey) != base {
			continue
		}
		check.Available = check.Available.Add(amount)
		check.Contributing = append(check.Contributing, domain.BalanceEntry{RawKey: rawKey, Amount: amount})
	}
	sort.Slice(check.Contributing, func(a, b int) bool {
		return check.Contributing[a].RawKey < check.Contributing[b].RawKey
	})

	check.Sufficient = check.Available.GreaterThanOrEqual(volume)
	return check, nil
}

// Aggregate normalizes a raw balance map into one quantity per asset.
func Aggregate(raw map[string]decimal.Decimal) domain.BalanceAggregate {
	agg := make(domain.BalanceAggregate, len(raw))
	for rawKey, amount := range raw {
		key := NormalizeAsset(rawKey)
		agg[key] = agg[key].Add(amount)
	}
	return agg
}
