// Package pricer supplies the latest trade price per pair with bounded
// staleness: streamed quotes when fresh, point-in-time requests otherwise.
package pricer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trailguard/internal/cache"
	"trailguard/internal/domain"
)

const defaultFreshness = 15 * time.Second

type tickerClient interface {
	Ticker(ctx context.Context, pair string) (decimal.Decimal, error)
}

// Provider answers GetPrice from the shared quote cache when a streamed
// value is fresh enough, falling back to a blocking ticker request. The
// streaming task feeds the cache through Consume; if the stream dies the
// provider keeps working on the fallback path alone.
type Provider struct {
	client    tickerClient
	cache     *cache.QuoteCache
	freshness time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewProvider builds a price provider over the given cache and REST client.
func NewProvider(client tickerClient, quoteCache *cache.QuoteCache, freshness time.Duration, logger *zap.Logger) *Provider {
	if freshness <= 0 {
		freshness = defaultFreshness
	}
	return &Provider{
		client:    client,
		cache:     quoteCache,
		freshness: freshness,
		logger:    logger,
		now:       time.Now,
	}
}

// Consume drains streamed quote updates into the cache until the channel is
// closed. Run it in its own goroutine alongside the stream.
func (p *Provider) Consume(updates <-chan domain.PriceQuote) {
	for quote := range updates {
		p.cache.Put(quote)
	}
	p.logger.Info("price stream ended, serving point-in-time requests only")
}

// GetPrice returns the latest price for the pair. A cached streamed value
// newer than the freshness bound is served immediately; otherwise one
// blocking ticker request populates the cache. Failures propagate typed so
// the engine can skip the pair for the cycle.
func (p *Provider) GetPrice(ctx context.Context, pair string) (domain.PriceQuote, error) {
	if quote, ok := p.cache.Get(pair); ok && quote.FresherThan(p.freshness, p.now()) {
		return quote, nil
	}

	price, err := p.client.Ticker(ctx, pair)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	quote := domain.PriceQuote{Pair: pair, Price: price, ObservedAt: p.now()}
	p.cache.Put(quote)
	return quote, nil
}
