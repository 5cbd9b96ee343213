package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trailguard/internal/domain"
	"trailguard/internal/exchange"
)

// closedOrdersOnce fetches the closed-orders listing at most once per cycle
// and shares the result across all reconciling rows.
type closedOrdersOnce struct {
	fetched bool
	orders  map[string]exchange.Order
	err     error
}

func (c *closedOrdersOnce) get(ctx context.Context, client orderClient, since time.Time) (map[string]exchange.Order, error) {
	if !c.fetched {
		c.orders, c.err = client.ClosedOrders(ctx, since)
		c.fetched = true
	}
	return c.orders, c.err
}

// reconcileRow polls the closed-order listing for a submitted row's remote
// id. Polling is the only fill-detection mechanism; there is no push
// channel for order status.
func (e *Engine) reconcileRow(ctx context.Context, cfg *domain.TriggerConfig, state *domain.TriggerState, closed *closedOrdersOnce, log *zap.Logger) {
	orders, err := closed.get(ctx, e.client, e.now().Add(-e.opts.Lookback))
	if err != nil {
		// read path: log and try again next cycle
		log.Warn("closed-orders poll failed, retrying next cycle", zap.Error(err))
		return
	}

	order, ok := orders[state.OrderID]
	if !ok || !order.Closed() {
		log.Debug("order not yet filled", zap.String("order_id", state.OrderID))
		return
	}

	fillPrice, err := decimal.NewFromString(order.Price)
	if err != nil {
		log.Warn("unparseable fill price, retrying next cycle",
			zap.String("order_id", state.OrderID), zap.String("price", order.Price))
		return
	}

	state.FillPrice = fillPrice

	e.notifier.Notify(domain.EventOrderFilled, map[string]string{
		"id":            cfg.ID,
		"pair":          cfg.Pair,
		"order_id":      state.OrderID,
		"fill_price":    fillPrice.String(),
		"trigger_price": state.TriggerPrice.String(),
		"initial_price": state.InitialPrice.String(),
	})
	// the guard flips exactly once; linked activation rides the same edge
	state.FillNotified = true

	log.Info("order filled",
		zap.String("order_id", state.OrderID),
		zap.String("fill_price", fillPrice.String()))

	if cfg.LinkedTriggerID != "" {
		e.activateLinked(cfg, log)
	}

	if err := e.states.Save(e.stateByID); err != nil {
		log.Error("failed to persist trigger state after fill", zap.Error(err))
	}
}

// activateLinked flips the linked row's enabled flag, chaining strategies.
func (e *Engine) activateLinked(cfg *domain.TriggerConfig, log *zap.Logger) {
	if err := e.triggers.SetEnabled(cfg.LinkedTriggerID, true); err != nil {
		log.Error("failed to enable linked trigger, enable it manually",
			zap.String("linked_id", cfg.LinkedTriggerID), zap.Error(err))
		return
	}
	log.Info("linked trigger enabled", zap.String("linked_id", cfg.LinkedTriggerID))
}
