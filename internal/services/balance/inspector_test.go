package balance

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trailguard/internal/domain"
)

type fakeBalanceClient struct {
	balances map[string]decimal.Decimal
	err      error
}

func (f *fakeBalanceClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.balances, f.err
}

func TestBaseAsset(t *testing.T) {
	tests := []struct {
		pair string
		base string
	}{
		{"XBTUSD", "XBT"},
		{"BTCUSD", "BTC"},
		{"XXBTZUSD", "XBT"},
		{"ETHUSDT", "ETH"},  // USDT must win over USD
		{"USDTUSD", "USDT"}, // base itself contains a quote prefix
		{"ETHXBT", "ETH"},
		{"SOLEUR", "SOL"},
	}

	for _, tc := range tests {
		t.Run(tc.pair, func(t *testing.T) {
			base, err := BaseAsset(tc.pair)
			require.NoError(t, err)
			require.Equal(t, tc.base, base)
		})
	}
}

func TestBaseAssetUnknownQuote(t *testing.T) {
	_, err := BaseAsset("FOOBAR")
	require.Error(t, err)
}

func TestNormalizeAsset(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"XXBT", "XBT"},
		{"XBT.F", "XBT"},
		{"XXBT.F", "XBT"},
		{"ZUSD", "USD"},
		{"USD.HOLD", "USD"},
		{"ETH.S", "ETH"},
		{"SOL", "SOL"},
		{"sol", "SOL"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeAsset(tc.raw))
		})
	}
}

func TestCheckSufficientAggregatesPartitions(t *testing.T) {
	client := &fakeBalanceClient{balances: map[string]decimal.Decimal{
		"XXBT":   decimal.NewFromFloat(1.0),
		"XBT.F":  decimal.NewFromFloat(0.5),
		"ZUSD":   decimal.NewFromInt(1000),
		"ETH":    decimal.NewFromInt(3),
	}}
	inspector := NewInspector(client)

	check, err := inspector.CheckSufficient(context.Background(), "XBTUSD", domain.DirectionSell, decimal.NewFromFloat(1.4))
	require.NoError(t, err)
	require.True(t, check.Sufficient)
	require.True(t, check.Available.Equal(decimal.NewFromFloat(1.5)))
	require.Len(t, check.Contributing, 2)

	check, err = inspector.CheckSufficient(context.Background(), "XBTUSD", domain.DirectionSell, decimal.NewFromFloat(1.6))
	require.NoError(t, err)
	require.False(t, check.Sufficient)
	require.True(t, check.Available.Equal(decimal.NewFromFloat(1.5)))
}

func TestCheckSufficientBuySkipped(t *testing.T) {
	// BUY-side quote sizing is not implemented; the check always passes
	// without touching the exchange.
	client := &fakeBalanceClient{err: errors.New("should not be called")}
	inspector := NewInspector(client)

	check, err := inspector.CheckSufficient(context.Background(), "XBTUSD", domain.DirectionBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.True(t, check.Sufficient)
}

func TestCheckSufficientTransportError(t *testing.T) {
	client := &fakeBalanceClient{err: errors.New("timeout")}
	inspector := NewInspector(client)

	_, err := inspector.CheckSufficient(context.Background(), "XBTUSD", domain.DirectionSell, decimal.NewFromInt(1))
	require.Error(t, err)
}

func TestAggregate(t *testing.T) {
	agg := Aggregate(map[string]decimal.Decimal{
		"XXBT":  decimal.NewFromFloat(1.0),
		"XBT.F": decimal.NewFromFloat(0.5),
		"ZUSD":  decimal.NewFromInt(100),
	})
	require.True(t, agg.Available("XBT").Equal(decimal.NewFromFloat(1.5)))
	require.True(t, agg.Available("USD").Equal(decimal.NewFromInt(100)))
	require.True(t, agg.Available("ETH").IsZero())
}
