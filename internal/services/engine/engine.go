// Package engine owns the trigger state machine: it evaluates thresholds,
// runs the admission gate, submits trailing-stop orders and reconciles
// fills by polling closed orders.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trailguard/internal/domain"
	"trailguard/internal/exchange"
	"trailguard/internal/services/admission"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultLookback     = 24 * time.Hour
)

type orderClient interface {
	AddOrder(ctx context.Context, req exchange.AddOrderRequest) (string, error)
	ClosedOrders(ctx context.Context, since time.Time) (map[string]exchange.Order, error)
}

type admissionGate interface {
	Evaluate(ctx context.Context, row domain.TriggerRow, state *domain.TriggerState) (admission.Outcome, error)
}

type triggerSource interface {
	Load() ([]domain.TriggerRow, error)
	SetEnabled(id string, enabled bool) error
}

type stateStore interface {
	Load() (map[string]*domain.TriggerState, error)
	Save(states map[string]*domain.TriggerState) error
}

type notifier interface {
	Notify(kind domain.EventKind, fields map[string]string)
}

// Options tune the driver loop.
type Options struct {
	PollInterval time.Duration
	// Lookback bounds the closed-orders query during reconciliation.
	Lookback time.Duration
	// DryRun disables all mutating exchange calls while still evaluating
	// thresholds and logging what would have happened.
	DryRun bool
	// Once runs a single cycle and returns.
	Once bool
}

// Engine drives the periodic evaluation loop. It is the single writer of
// TriggerState; all other components only read it.
type Engine struct {
	triggers triggerSource
	states   stateStore
	gate     admissionGate
	client   orderClient
	notifier notifier
	logger   *zap.Logger
	opts     Options

	stateByID map[string]*domain.TriggerState
	now       func() time.Time
}

// New builds an engine. State is loaded lazily on Run so a corrupt state
// file surfaces as a startup error there.
func New(triggers triggerSource, states stateStore, gate admissionGate, client orderClient,
	n notifier, logger *zap.Logger, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	return &Engine{
		triggers: triggers,
		states:   states,
		gate:     gate,
		client:   client,
		notifier: n,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes the driver loop until ctx is cancelled. Persisted state is
// flushed before returning.
func (e *Engine) Run(ctx context.Context) error {
	states, err := e.states.Load()
	if err != nil {
		return errors.Wrap(err, "load trigger state")
	}
	e.stateByID = states

	// the very first cycle must see a readable config store
	if _, err := e.triggers.Load(); err != nil {
		return errors.Wrap(err, "load trigger config")
	}

	defer func() {
		if err := e.states.Save(e.stateByID); err != nil {
			e.logger.Error("failed to flush trigger state on shutdown", zap.Error(err))
		}
	}()

	e.logger.Info("starting trigger loop",
		zap.Duration("poll_interval", e.opts.PollInterval),
		zap.Bool("dry_run", e.opts.DryRun))

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	e.runCycle(ctx)
	if e.opts.Once {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("shutdown signal received, stopping trigger loop")
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle evaluates every configured row once. Rows are isolated: a
// failure for one row never prevents the others from being processed.
func (e *Engine) runCycle(ctx context.Context) {
	rows, err := e.triggers.Load()
	if err != nil {
		e.logger.Error("trigger config reload failed, skipping cycle", zap.Error(err))
		e.notifier.Notify(domain.EventConfigReloadError, map[string]string{"error": err.Error()})
		return
	}

	var closed closedOrdersOnce
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		e.processRow(ctx, row, &closed)
	}

	if err := e.states.Save(e.stateByID); err != nil {
		e.logger.Error("failed to persist trigger state", zap.Error(err))
	}
}

// ensureState returns the ledger entry for a row, creating it on first sight.
func (e *Engine) ensureState(id string) *domain.TriggerState {
	if state, ok := e.stateByID[id]; ok {
		return state
	}
	state := &domain.TriggerState{}
	e.stateByID[id] = state
	return state
}

func (e *Engine) processRow(ctx context.Context, row domain.TriggerRow, closed *closedOrdersOnce) {
	if row.Invalid != "" {
		e.logger.Warn("skipping invalid trigger row",
			zap.String("id", row.ID), zap.String("reason", row.Invalid))
		return
	}

	state := e.ensureState(row.Config.ID)
	log := e.logger.With(zap.String("id", row.Config.ID), zap.String("pair", row.Config.Pair))

	switch state.Lifecycle() {
	case domain.StateSubmitted:
		e.reconcileRow(ctx, row.Config, state, closed, log)
	case domain.StateFailed:
		// submission failed earlier; never retried without operator action
		if !state.FailNotified {
			e.notifyOrderFailed(row.Config, state, "submission previously failed, awaiting operator action")
		}
	case domain.StateFilled:
		// terminal, nothing left to do
	case domain.StateIdle:
		e.evaluateRow(ctx, row, state, log)
	}
}

func (e *Engine) evaluateRow(ctx context.Context, row domain.TriggerRow, state *domain.TriggerState, log *zap.Logger) {
	outcome, err := e.gate.Evaluate(ctx, row, state)
	if err != nil {
		log.Warn("admission check failed, retrying next cycle", zap.Error(err))
		return
	}

	e.captureInitialPrice(state, outcome)

	if !outcome.Admitted {
		e.handleDenial(row.Config, state, outcome, log)
		return
	}

	// balance recovered or was never short; re-arm the shortage guard
	state.InsufficientNotified = false

	e.submit(ctx, row.Config, state, outcome, log)
}

// captureInitialPrice records the first observed price for a row, once.
func (e *Engine) captureInitialPrice(state *domain.TriggerState, outcome admission.Outcome) {
	if state.InitialPriceSet || outcome.Price.Price.IsZero() {
		return
	}
	state.InitialPrice = outcome.Price.Price
	state.InitialPriceSet = true
}

func (e *Engine) handleDenial(cfg *domain.TriggerConfig, state *domain.TriggerState, outcome admission.Outcome, log *zap.Logger) {
	switch outcome.Reason {
	case admission.DenyThresholdNotMet, admission.DenyDisabled, admission.DenyAlreadyTriggered:
		log.Debug("trigger not admitted", zap.String("reason", outcome.Reason.String()))
	case admission.DenyPriceUnavailable:
		log.Warn("price unavailable, skipping pair this cycle", zap.String("detail", outcome.Detail))
	case admission.DenyInsufficientBalance:
		log.Warn("insufficient balance for trigger",
			zap.String("required", cfg.Volume.String()),
			zap.String("available", outcome.Available.String()))
		if !state.InsufficientNotified {
			e.notifier.Notify(domain.EventInsufficientBalance, map[string]string{
				"id":        cfg.ID,
				"pair":      cfg.Pair,
				"required":  cfg.Volume.String(),
				"available": outcome.Available.String(),
			})
			state.InsufficientNotified = true
		}
	default:
		log.Warn("trigger denied", zap.String("reason", outcome.Reason.String()), zap.String("detail", outcome.Detail))
	}

	if outcome.Reason != admission.DenyInsufficientBalance {
		state.InsufficientNotified = false
	}
}

// submit places the trailing-stop order. State is persisted only after a
// definitive success or failure response; an ambiguous outcome (timeout,
// transport) is treated as FAILED rather than retried, preserving
// at-most-once submission.
func (e *Engine) submit(ctx context.Context, cfg *domain.TriggerConfig, state *domain.TriggerState, outcome admission.Outcome, log *zap.Logger) {
	req := exchange.AddOrderRequest{
		Pair:           cfg.Pair,
		Side:           cfg.Direction.OrderSide(),
		Volume:         cfg.Volume,
		TrailingOffset: cfg.TrailingOffset,
	}

	if e.opts.DryRun {
		log.Info("dry-run: would submit trailing-stop order",
			zap.String("side", req.Side),
			zap.String("volume", req.Volume.String()),
			zap.String("trailing", req.TrailingPrice()),
			zap.String("price", outcome.Price.Price.String()))
		return
	}

	orderID, err := e.client.AddOrder(ctx, req)

	state.Triggered = true
	state.TriggerPrice = outcome.Price.Price
	state.TriggerTime = e.now()

	if err != nil {
		e.notifyOrderFailed(cfg, state, err.Error())
		log.Error("order submission failed, row is parked until operator action", zap.Error(err))
	} else {
		state.OrderID = orderID
		log.Info("trailing-stop order submitted",
			zap.String("order_id", orderID),
			zap.String("trigger_price", state.TriggerPrice.String()),
			zap.String("trailing", req.TrailingPrice()))
	}

	// order-affecting mutation: persist immediately, not just end of cycle
	if err := e.states.Save(e.stateByID); err != nil {
		log.Error("failed to persist trigger state after submission", zap.Error(err))
	}
}

func (e *Engine) notifyOrderFailed(cfg *domain.TriggerConfig, state *domain.TriggerState, detail string) {
	e.notifier.Notify(domain.EventOrderFailed, map[string]string{
		"id":     cfg.ID,
		"pair":   cfg.Pair,
		"error":  detail,
		"volume": cfg.Volume.String(),
	})
	state.FailNotified = true
}
