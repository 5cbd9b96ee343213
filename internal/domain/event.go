package domain

import "time"

// EventKind classifies outbound notification events.
type EventKind string

const (
	EventInsufficientBalance EventKind = "insufficient_balance"
	EventOrderFailed         EventKind = "order_failed"
	EventOrderFilled         EventKind = "order_filled"
	EventConfigReloadError   EventKind = "config_reload_error"
)

// Event is one structured notification emitted by the engine. Delivery is
// fire-and-forget; the sink decides how to fan it out.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Timestamp time.Time         `json:"ts"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// EventRecord pairs a journaled event with its journal index so readers can
// resume from where they left off.
type EventRecord struct {
	Index uint64 `json:"index"`
	Event Event  `json:"event"`
}
