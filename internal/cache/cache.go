// Package cache provides a two-tier (memory + disk) quote cache. It is not
// trading-aware: the price provider and read-mostly lookups share it.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"trailguard/internal/domain"
)

// QuoteCache keeps the latest quote per pair in memory and snapshots the map
// to disk so restarts begin warm. The price and timestamp of an entry always
// move together under the lock, never observed mismatched.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.PriceQuote
	path   string // empty disables the disk tier
}

// NewQuoteCache creates a cache backed by the given snapshot file. An empty
// path keeps the cache memory-only.
func NewQuoteCache(path string) (*QuoteCache, error) {
	c := &QuoteCache{
		quotes: make(map[string]domain.PriceQuote),
		path:   path,
	}
	if path == "" {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache dir")
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the cached quote for a pair, if any.
func (c *QuoteCache) Get(pair string) (domain.PriceQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quote, ok := c.quotes[pair]
	return quote, ok
}

// Put stores a quote, keeping ObservedAt monotonic per pair: an update older
// than the cached one is discarded.
func (c *QuoteCache) Put(quote domain.PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.quotes[quote.Pair]; ok && prev.ObservedAt.After(quote.ObservedAt) {
		return
	}
	c.quotes[quote.Pair] = quote
}

type storedQuote struct {
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

func (c *QuoteCache) load() error {
	payload, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "read quote cache")
	}
	if len(payload) == 0 {
		return nil
	}

	var stored map[string]storedQuote
	if err := json.Unmarshal(payload, &stored); err != nil {
		// cache is best-effort, a bad snapshot just means a cold start
		return nil
	}

	for pair, sq := range stored {
		price, err := decimal.NewFromString(sq.Price)
		if err != nil {
			continue
		}
		c.quotes[pair] = domain.PriceQuote{Pair: pair, Price: price, ObservedAt: sq.ObservedAt}
	}
	return nil
}

// Flush writes the disk snapshot via temp file and atomic rename.
func (c *QuoteCache) Flush() error {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	stored := make(map[string]storedQuote, len(c.quotes))
	for pair, quote := range c.quotes {
		stored[pair] = storedQuote{Price: quote.Price.String(), ObservedAt: quote.ObservedAt}
	}
	c.mu.RUnlock()

	payload, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode quote cache")
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write quote cache temp file")
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errors.Wrap(err, "persist quote cache")
	}
	return nil
}
