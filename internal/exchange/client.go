// Package exchange implements the authenticated wire protocol of the
// exchange: nonce generation, HMAC request signing, the error envelope and
// the private/public endpoints the engine consumes. It knows nothing about
// trading semantics and never retries.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api.kraken.com"
	requestTimeout = 15 * time.Second

	pathBalance      = "/0/private/Balance"
	pathAddOrder     = "/0/private/AddOrder"
	pathOpenOrders   = "/0/private/OpenOrders"
	pathClosedOrders = "/0/private/ClosedOrders"
	pathTicker       = "/0/public/Ticker"
)

// Client signs and sends private API calls and parses the generic
// {error, result} envelope. Stateless except for credentials and the
// monotonic nonce sequence, which is safe for concurrent callers.
type Client struct {
	baseURL   string
	apiKey    string
	secret    []byte // decoded from base64 at construction
	hc        *http.Client
	lastNonce atomic.Int64
}

// NewClient builds a client from the credential pair. The secret is
// base64-decoded once here; a malformed secret is a startup error.
func NewClient(apiKey, apiSecret string) (*Client, error) {
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "decode api secret")
	}

	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		secret:  secret,
		hc:      &http.Client{Timeout: requestTimeout},
	}, nil
}

// WithBaseURL overrides the API endpoint, used by tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// nonce returns a strictly increasing value derived from wall-clock
// microseconds. The exchange rejects reused or decreasing nonces, so the
// sequence must stay monotonic even with concurrent call sites.
func (c *Client) nonce() int64 {
	for {
		now := time.Now().UnixMicro()
		last := c.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

// sign computes base64(HMAC-SHA512(secret, path || SHA256(nonce || body))).
func (c *Client) sign(path string, nonce int64, body string) string {
	inner := sha256.Sum256([]byte(strconv.FormatInt(nonce, 10) + body))
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// call performs one signed POST and decodes the envelope into result.
func (c *Client) call(ctx context.Context, path string, params url.Values, result any) error {
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nonce()
	params.Set("nonce", strconv.FormatInt(nonce, 10))
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", c.sign(path, nonce, body))

	return c.do(req, path, result)
}

// callPublic performs one unauthenticated GET and decodes the envelope.
func (c *Client) callPublic(ctx context.Context, path string, params url.Values, result any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return c.do(req, path, result)
}

func (c *Client) do(req *http.Request, path string, result any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Method: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransportError{Method: path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: path, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return &TransportError{Method: path, Err: errors.Wrap(err, "decode envelope")}
	}

	// a non-empty error array is always an error regardless of HTTP status
	if len(env.Error) > 0 {
		return &APIError{Method: path, Messages: env.Error}
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return &TransportError{Method: path, Err: errors.Wrap(err, "decode result")}
		}
	}
	return nil
}

// Balances returns the raw per-wallet balances keyed by the exchange's
// internal asset names, partition suffixes included.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := c.call(ctx, pathBalance, nil, &raw); err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(raw))
	for key, value := range raw {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, &TransportError{Method: pathBalance, Err: errors.Wrapf(err, "parse balance %s", key)}
		}
		balances[key] = amount
	}
	return balances, nil
}

// AddOrderRequest describes one trailing-stop order submission.
type AddOrderRequest struct {
	Pair           string
	Side           string // "buy" or "sell"
	Volume         decimal.Decimal
	TrailingOffset decimal.Decimal // percent
}

// TrailingPrice renders the relative trailing price parameter as a signed
// percentage string, e.g. "+2.0%".
func (r AddOrderRequest) TrailingPrice() string {
	s := r.TrailingOffset.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return "+" + s + "%"
}

type addOrderResult struct {
	TxIDs []string `json:"txid"`
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
}

// AddOrder submits one trailing-stop order and returns the remote order id.
// Exactly one wire call per invocation; retry policy belongs to the caller.
func (c *Client) AddOrder(ctx context.Context, req AddOrderRequest) (string, error) {
	params := url.Values{}
	params.Set("pair", req.Pair)
	params.Set("type", req.Side)
	params.Set("ordertype", "trailing-stop")
	params.Set("volume", req.Volume.String())
	params.Set("price", req.TrailingPrice())

	var result addOrderResult
	if err := c.call(ctx, pathAddOrder, params, &result); err != nil {
		return "", err
	}
	if len(result.TxIDs) == 0 {
		return "", &TransportError{Method: pathAddOrder, Err: errors.New("no txid in response")}
	}
	return result.TxIDs[0], nil
}

// Order is the subset of remote order fields the engine reconciles against.
type Order struct {
	Status     string `json:"status"`
	Price      string `json:"price"`
	VolumeExec string `json:"vol_exec"`
}

// Closed reports whether the remote order has been fully executed.
func (o Order) Closed() bool {
	return o.Status == "closed"
}

type closedOrdersResult struct {
	Closed map[string]Order `json:"closed"`
}

// ClosedOrders lists orders closed since the given lookback start.
func (c *Client) ClosedOrders(ctx context.Context, since time.Time) (map[string]Order, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(since.Unix(), 10))

	var result closedOrdersResult
	if err := c.call(ctx, pathClosedOrders, params, &result); err != nil {
		return nil, err
	}
	return result.Closed, nil
}

type openOrdersResult struct {
	Open map[string]Order `json:"open"`
}

// OpenOrders lists currently open orders.
func (c *Client) OpenOrders(ctx context.Context) (map[string]Order, error) {
	var result openOrdersResult
	if err := c.call(ctx, pathOpenOrders, nil, &result); err != nil {
		return nil, err
	}
	return result.Open, nil
}

type tickerEntry struct {
	// c holds [last trade price, lot volume]
	Close []string `json:"c"`
}

// Ticker returns the last trade price for a pair via the public endpoint.
func (c *Client) Ticker(ctx context.Context, pair string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("pair", pair)

	var result map[string]tickerEntry
	if err := c.callPublic(ctx, pathTicker, params, &result); err != nil {
		return decimal.Decimal{}, err
	}

	// the exchange may answer under an aliased pair name, take any entry
	for _, entry := range result {
		if len(entry.Close) == 0 {
			continue
		}
		price, err := decimal.NewFromString(entry.Close[0])
		if err != nil {
			return decimal.Decimal{}, &TransportError{Method: pathTicker, Err: errors.Wrap(err, "parse last price")}
		}
		return price, nil
	}
	return decimal.Decimal{}, &TransportError{Method: pathTicker, Err: fmt.Errorf("empty ticker for %s", pair)}
}
