package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trailguard/internal/domain"
	"trailguard/pkg/retrier"
)

const (
	defaultStreamURL   = "wss://ws.kraken.com"
	maxConnectAttempts = 8
	readDeadline       = 90 * time.Second
)

// Stream maintains one long-lived trade subscription multiplexed across all
// requested pairs and delivers quote updates over a channel. It is a
// daemon-style task: it never blocks shutdown and never crashes its consumer.
// When the connection cannot be (re)established within the retry budget the
// stream gives up for the process lifetime and closes the updates channel;
// the price provider then falls back to point-in-time requests.
type Stream struct {
	url     string
	pairs   []string
	updates chan domain.PriceQuote
	logger  *zap.Logger
}

// NewStream prepares a trade stream for the given pairs.
func NewStream(pairs []string, logger *zap.Logger) *Stream {
	return &Stream{
		url:     defaultStreamURL,
		pairs:   pairs,
		updates: make(chan domain.PriceQuote, 64),
		logger:  logger,
	}
}

// WithURL overrides the socket endpoint, used by tests.
func (s *Stream) WithURL(u string) *Stream {
	s.url = u
	return s
}

// Updates returns the channel of streamed quotes. It is closed when the
// stream permanently stops.
func (s *Stream) Updates() <-chan domain.PriceQuote {
	return s.updates
}

type subscribeMessage struct {
	Event        string   `json:"event"`
	Pair         []string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// Run connects, subscribes and pumps trade updates until ctx is cancelled
// or the reconnect budget is exhausted. Intended to run in its own goroutine.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.updates)

	if len(s.pairs) == 0 {
		return
	}

	backoff := retrier.New(retrier.WithInitialInterval(time.Second), retrier.WithMaxInterval(30*time.Second))
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.connect(ctx)
		if err != nil {
			if backoff.Attempts() >= maxConnectAttempts {
				s.logger.Warn("price stream unavailable, falling back to point-in-time requests",
					zap.Int("attempts", backoff.Attempts()), zap.Error(err))
				return
			}
			s.logger.Debug("price stream connect failed", zap.Error(err))
			if backoff.Wait(ctx) != nil {
				return
			}
			continue
		}

		backoff.Reset()
		s.pump(ctx, conn)
		_ = conn.Close()
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return nil, err
	}

	sub := subscribeMessage{Event: "subscribe", Pair: s.pairs}
	sub.Subscription.Name = "trade"
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// pump reads trade messages until the connection breaks or ctx is done.
func (s *Stream) pump(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("price stream read failed, reconnecting", zap.Error(err))
			}
			return
		}

		quote, ok := parseTradeMessage(payload)
		if !ok {
			continue
		}

		select {
		case s.updates <- quote:
		default:
			// consumer lagging, drop the update: a fresher one follows
		}
	}
}

// parseTradeMessage decodes one socket frame. Trade payloads are arrays of
// the form [channelID, [[price, volume, time, ...], ...], "trade", "PAIR"];
// everything else (heartbeats, subscription acks) is ignored.
func parseTradeMessage(payload []byte) (domain.PriceQuote, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil || len(frame) < 4 {
		return domain.PriceQuote{}, false
	}

	var channel string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil || channel != "trade" {
		return domain.PriceQuote{}, false
	}

	var pair string
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return domain.PriceQuote{}, false
	}

	var trades [][]json.RawMessage
	if err := json.Unmarshal(frame[1], &trades); err != nil || len(trades) == 0 {
		return domain.PriceQuote{}, false
	}

	// the last trade in the batch is the most recent
	last := trades[len(trades)-1]
	if len(last) == 0 {
		return domain.PriceQuote{}, false
	}

	var priceStr string
	if err := json.Unmarshal(last[0], &priceStr); err != nil {
		return domain.PriceQuote{}, false
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceQuote{}, false
	}

	return domain.PriceQuote{Pair: pair, Price: price, ObservedAt: time.Now()}, true
}
