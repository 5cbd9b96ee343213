// Package admission implements the validation pipeline that must fully
// pass before any mutating exchange call is made.
package admission

import (
	"context"

	"github.com/shopspring/decimal"

	"trailguard/internal/domain"
	"trailguard/internal/services/balance"
)

// DenialReason identifies which gate step rejected a row. Denials are
// normal negative outcomes, not errors.
type DenialReason int

const (
	DenyNone DenialReason = iota
	DenyInvalidRow
	DenyDisabled
	DenyAlreadyTriggered
	DenyPriceUnavailable
	DenyThresholdNotMet
	DenyInsufficientBalance
)

// String returns the string representation of the denial reason.
func (r DenialReason) String() string {
	switch r {
	case DenyNone:
		return "admitted"
	case DenyInvalidRow:
		return "invalid row"
	case DenyDisabled:
		return "disabled"
	case DenyAlreadyTriggered:
		return "already triggered"
	case DenyPriceUnavailable:
		return "price unavailable"
	case DenyThresholdNotMet:
		return "threshold not met"
	case DenyInsufficientBalance:
		return "insufficient balance"
	default:
		return "unknown"
	}
}

// Outcome is the result of running the gate: either admitted with the
// observed price, or denied with the first failing step's reason. Expected
// negative outcomes never surface as errors.
type Outcome struct {
	Admitted bool
	Reason   DenialReason
	Detail   string

	// Price observed during evaluation, set whenever step 5 succeeded.
	Price domain.PriceQuote

	// Available is filled on balance denials for diagnostic logging.
	Available decimal.Decimal
}

func denied(reason DenialReason, detail string) Outcome {
	return Outcome{Reason: reason, Detail: detail}
}

type pricer interface {
	GetPrice(ctx context.Context, pair string) (domain.PriceQuote, error)
}

type balanceInspector interface {
	CheckSufficient(ctx context.Context, pair string, direction domain.Direction, volume decimal.Decimal) (balance.Check, error)
}

// Gate runs the strictly ordered, short-circuiting admission checks.
// Structural, numeric and enum validity (steps 1-3) are established by the
// typed row parse upstream; an Invalid row is denied at the first step here
// without touching any collaborator.
type Gate struct {
	pricer   pricer
	balances balanceInspector
}

// NewGate builds an admission gate over the price provider and balance
// inspector.
func NewGate(pricer pricer, balances balanceInspector) *Gate {
	return &Gate{pricer: pricer, balances: balances}
}

// Evaluate applies the pipeline to one row. First failure wins and no
// partial side effects occur. A returned error means a collaborator failed
// (transport, parse): the row should be re-evaluated next cycle.
func (g *Gate) Evaluate(ctx context.Context, row domain.TriggerRow, state *domain.TriggerState) (Outcome, error) {
	if row.Invalid != "" || row.Config == nil {
		return denied(DenyInvalidRow, row.Invalid), nil
	}
	cfg := row.Config

	if !cfg.Enabled {
		return denied(DenyDisabled, ""), nil
	}
	if state != nil && state.Triggered {
		return denied(DenyAlreadyTriggered, ""), nil
	}

	quote, err := g.pricer.GetPrice(ctx, cfg.Pair)
	if err != nil {
		return denied(DenyPriceUnavailable, err.Error()), nil
	}

	if !cfg.ThresholdType.Satisfied(quote.Price, cfg.ThresholdPrice) {
		out := denied(DenyThresholdNotMet, "")
		out.Price = quote
		return out, nil
	}

	check, err := g.balances.CheckSufficient(ctx, cfg.Pair, cfg.Direction, cfg.Volume)
	if err != nil {
		return Outcome{}, err
	}
	if !check.Sufficient {
		out := denied(DenyInsufficientBalance, "")
		out.Price = quote
		out.Available = check.Available
		return out, nil
	}

	return Outcome{Admitted: true, Reason: DenyNone, Price: quote}, nil
}
