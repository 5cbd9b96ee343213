// Command trailguard watches live prices for configured trigger rows and,
// when a threshold is crossed and admission checks pass, submits a
// trailing-stop order and reconciles it through fill or failure.
//
// Usage:
//
//	trailguard --config config.yaml
//	trailguard --triggers triggers.yaml --interval 30s [--dry-run] [--once]
//
// Required environment variables: KRAKEN_API_KEY, KRAKEN_API_SECRET.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trailguard/config"
	"trailguard/internal/cache"
	"trailguard/internal/exchange"
	"trailguard/internal/notify"
	"trailguard/internal/services/admission"
	"trailguard/internal/services/balance"
	"trailguard/internal/services/engine"
	"trailguard/internal/services/pricer"
	"trailguard/internal/storage/events"
	"trailguard/internal/storage/triggers"
	"trailguard/internal/storage/triggerstate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	apiKey := os.Getenv("KRAKEN_API_KEY")
	apiSecret := os.Getenv("KRAKEN_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		logger.Fatal("KRAKEN_API_KEY and KRAKEN_API_SECRET environment variables must be set")
	}

	client, err := exchange.NewClient(apiKey, apiSecret)
	if err != nil {
		logger.Fatal("invalid credentials", zap.Error(err))
	}

	triggerStore := triggers.NewStore(cfg.TriggersPath)
	rows, err := triggerStore.Load()
	if err != nil {
		logger.Fatal("trigger config unreadable", zap.Error(err))
	}

	stateStore, err := triggerstate.NewStore(cfg.StatePath)
	if err != nil {
		logger.Fatal("failed to prepare state store", zap.Error(err))
	}

	quoteCache, err := cache.NewQuoteCache(cfg.CachePath)
	if err != nil {
		logger.Fatal("failed to prepare quote cache", zap.Error(err))
	}

	eventStore, err := events.NewWALStore(cfg.EventsDir)
	if err != nil {
		logger.Fatal("failed to prepare event journal", zap.Error(err))
	}
	defer eventStore.Close()

	pairs := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, row := range rows {
		if row.Config == nil || seen[row.Config.Pair] {
			continue
		}
		seen[row.Config.Pair] = true
		pairs = append(pairs, row.Config.Pair)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	priceProvider := pricer.NewProvider(client, quoteCache, cfg.PriceFreshness, logger)
	inspector := balance.NewInspector(client)
	gate := admission.NewGate(priceProvider, inspector)
	notifier := notify.NewNotifier(logger, eventStore, cfg.WebhookURL)

	eng := engine.New(triggerStore, stateStore, gate, client, notifier, logger, engine.Options{
		PollInterval: cfg.PollInterval,
		Lookback:     cfg.Lookback,
		DryRun:       cfg.DryRun,
		Once:         cfg.Once,
	})

	stream := exchange.NewStream(pairs, logger)

	// the stream is a daemon: it feeds the cache but never blocks shutdown
	go stream.Run(ctx)
	go priceProvider.Consume(stream.Updates())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("engine stopped with error", zap.Error(err))
		if flushErr := quoteCache.Flush(); flushErr != nil {
			logger.Warn("failed to flush quote cache", zap.Error(flushErr))
		}
		os.Exit(1)
	}

	if err := quoteCache.Flush(); err != nil {
		logger.Warn("failed to flush quote cache", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
