package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleState is the derived position of a trigger in its state machine.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateSubmitted
	StateFilled
	StateFailed
)

// String returns the string representation of the lifecycle state.
func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSubmitted:
		return "ORDER_SUBMITTED"
	case StateFilled:
		return "FILLED"
	case StateFailed:
		return "FAILED"
	default:
		return "unknown"
	}
}

// TriggerState is the mutable ledger for one trigger config id. The engine
// is its only writer; presentation collaborators read persisted copies.
type TriggerState struct {
	Triggered    bool            `json:"triggered"`
	OrderID      string          `json:"order_id,omitempty"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	TriggerTime  time.Time       `json:"trigger_time"`
	FillNotified bool            `json:"fill_notified"`
	FillPrice    decimal.Decimal `json:"fill_price"`

	// InitialPrice is captured on first observation of the pair and never
	// overwritten; used for after-the-fact "was it worth waiting" reports.
	InitialPrice    decimal.Decimal `json:"initial_price"`
	InitialPriceSet bool            `json:"initial_price_set"`

	// Notification dedup guards, one per event kind.
	FailNotified         bool `json:"fail_notified"`
	InsufficientNotified bool `json:"insufficient_notified"`
}

// Lifecycle derives the state machine position from the persisted fields.
func (s *TriggerState) Lifecycle() LifecycleState {
	if s == nil || !s.Triggered {
		return StateIdle
	}
	if s.OrderID == "" {
		return StateFailed
	}
	if s.FillNotified {
		return StateFilled
	}
	return StateSubmitted
}
