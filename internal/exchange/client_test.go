package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "c2VjcmV0LWtleS1ieXRlcw==" // base64("secret-key-bytes")

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-key", testSecret)
	require.NoError(t, err)
	return client.WithBaseURL(server.URL)
}

func TestNewClientRejectsBadSecret(t *testing.T) {
	_, err := NewClient("key", "not base64 !!!")
	require.Error(t, err)
}

func TestNonceStrictlyIncreases(t *testing.T) {
	client, err := NewClient("key", testSecret)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 1000; i++ {
		n := client.nonce()
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestSignatureMatchesProtocol(t *testing.T) {
	var gotSign, gotKey, gotBody, gotPath string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		gotBody = string(payload)
		gotPath = r.URL.Path
		gotSign = r.Header.Get("API-Sign")
		gotKey = r.Header.Get("API-Key")
		w.Write([]byte(`{"error":[],"result":{}}`))
	})

	_, err := client.Balances(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-key", gotKey)
	require.Equal(t, "/0/private/Balance", gotPath)

	// recompute: base64(HMAC-SHA512(secret, path || SHA256(nonce || body)))
	values, err := url.ParseQuery(gotBody)
	require.NoError(t, err)
	nonce := values.Get("nonce")
	require.NotEmpty(t, nonce)

	inner := sha256.Sum256([]byte(nonce + gotBody))
	secret, _ := base64.StdEncoding.DecodeString(testSecret)
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(gotPath))
	mac.Write(inner[:])
	require.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), gotSign)
}

func TestEnvelopeErrorBecomesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EOrder:Insufficient funds"],"result":{}}`))
	})

	_, err := client.AddOrder(context.Background(), AddOrderRequest{
		Pair: "XBTUSD", Side: "sell",
		Volume: decimal.NewFromFloat(0.01), TrailingOffset: decimal.NewFromFloat(2.0),
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, []string{"EOrder:Insufficient funds"}, apiErr.Messages)
}

func TestServerErrorBecomesTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Balances(context.Background())
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestTrailingPriceFormat(t *testing.T) {
	tests := []struct {
		offset string
		want   string
	}{
		{"2.0", "+2.0%"},
		{"2", "+2.0%"},
		{"0.5", "+0.5%"},
		{"12.25", "+12.25%"},
	}

	for _, tc := range tests {
		t.Run(tc.offset, func(t *testing.T) {
			offset, err := decimal.NewFromString(tc.offset)
			require.NoError(t, err)
			req := AddOrderRequest{TrailingOffset: offset}
			require.Equal(t, tc.want, req.TrailingPrice())
		})
	}
}

func TestAddOrderWireParameters(t *testing.T) {
	var form url.Values

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(payload))
		w.Write([]byte(`{"error":[],"result":{"txid":["OTX-123"],"descr":{"order":"sell 0.01 XBTUSD @ trailing stop +2.0%"}}}`))
	})

	txid, err := client.AddOrder(context.Background(), AddOrderRequest{
		Pair: "XBTUSD", Side: "sell",
		Volume: decimal.NewFromFloat(0.01), TrailingOffset: decimal.NewFromFloat(2.0),
	})
	require.NoError(t, err)
	require.Equal(t, "OTX-123", txid)

	require.Equal(t, "XBTUSD", form.Get("pair"))
	require.Equal(t, "sell", form.Get("type"))
	require.Equal(t, "trailing-stop", form.Get("ordertype"))
	require.Equal(t, "0.01", form.Get("volume"))
	require.Equal(t, "+2.0%", form.Get("price"))
}

func TestBalancesParsing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":[],"result":{"XXBT":"1.0","XBT.F":"0.5"}}`))
	})

	balances, err := client.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.True(t, balances["XXBT"].Equal(decimal.NewFromFloat(1.0)))
	require.True(t, balances["XBT.F"].Equal(decimal.NewFromFloat(0.5)))
}

func TestClosedOrders(t *testing.T) {
	var form url.Values

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(payload))
		w.Write([]byte(`{"error":[],"result":{"closed":{"OTX-123":{"status":"closed","price":"50600.0","vol_exec":"0.01"}}}}`))
	})

	since := time.Now().Add(-time.Hour)
	orders, err := client.ClosedOrders(context.Background(), since)
	require.NoError(t, err)
	require.NotEmpty(t, form.Get("start"))

	order, ok := orders["OTX-123"]
	require.True(t, ok)
	require.True(t, order.Closed())
	require.Equal(t, "50600.0", order.Price)
}

func TestOpenOrders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/0/private/OpenOrders", r.URL.Path)
		w.Write([]byte(`{"error":[],"result":{"open":{"OTX-9":{"status":"open","price":"0","vol_exec":"0"}}}}`))
	})

	orders, err := client.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.False(t, orders["OTX-9"].Closed())
}

func TestTickerLastPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["50500.0","0.01"]}}}`))
	})

	price, err := client.Ticker(context.Background(), "XBTUSD")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromFloat(50500.0)))
}
