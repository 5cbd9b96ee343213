// Package domain defines core data structures used throughout the trigger engine.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ThresholdType tells on which side of the threshold price a trigger fires.
type ThresholdType int

const (
	ThresholdAbove ThresholdType = iota
	ThresholdBelow
)

const (
	thresholdStringAbove = "ABOVE"
	thresholdStringBelow = "BELOW"
)

// String returns the string representation of the threshold type.
func (t ThresholdType) String() string {
	switch t {
	case ThresholdAbove:
		return thresholdStringAbove
	case ThresholdBelow:
		return thresholdStringBelow
	default:
		return "unknown"
	}
}

// ParseThresholdType parses the textual threshold type from a config row.
func ParseThresholdType(s string) (ThresholdType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case thresholdStringAbove:
		return ThresholdAbove, nil
	case thresholdStringBelow:
		return ThresholdBelow, nil
	default:
		return 0, fmt.Errorf("unknown threshold type %q", s)
	}
}

// Satisfied reports whether the threshold condition holds for the given price.
// ABOVE means price >= threshold, BELOW means price <= threshold.
func (t ThresholdType) Satisfied(price, threshold decimal.Decimal) bool {
	if t == ThresholdAbove {
		return price.GreaterThanOrEqual(threshold)
	}
	return price.LessThanOrEqual(threshold)
}

// Direction is the side of the protective order placed once a trigger fires.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

const (
	directionStringBuy  = "BUY"
	directionStringSell = "SELL"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return directionStringBuy
	case DirectionSell:
		return directionStringSell
	default:
		return "unknown"
	}
}

// OrderSide returns the wire-level order side parameter.
func (d Direction) OrderSide() string {
	if d == DirectionBuy {
		return "buy"
	}
	return "sell"
}

// ParseDirection parses the textual direction from a config row.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case directionStringBuy:
		return DirectionBuy, nil
	case directionStringSell:
		return DirectionSell, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// TriggerConfig is one fully validated trigger intent. Rows are owned by the
// configuration store and read-only to the engine within a cycle.
type TriggerConfig struct {
	ID              string
	Pair            string
	ThresholdPrice  decimal.Decimal
	ThresholdType   ThresholdType
	Direction       Direction
	Volume          decimal.Decimal
	TrailingOffset  decimal.Decimal // percent, strictly positive
	Enabled         bool
	LinkedTriggerID string
}

// RawTriggerConfig carries the loosely typed fields of a stored row before
// validation. It mirrors the on-disk schema one to one.
type RawTriggerConfig struct {
	ID              string `yaml:"id"`
	Pair            string `yaml:"pair"`
	ThresholdPrice  string `yaml:"threshold_price"`
	ThresholdType   string `yaml:"threshold_type"`
	Direction       string `yaml:"direction"`
	Volume          string `yaml:"volume"`
	TrailingOffset  string `yaml:"trailing_offset_percent"`
	Enabled         bool   `yaml:"enabled"`
	LinkedTriggerID string `yaml:"linked_order_id,omitempty"`
}

// TriggerRow is the result of validating a raw row: either a usable config
// or an invalid variant carrying the reason. Invalid rows never reach the
// admission gate with partially filled fields.
type TriggerRow struct {
	Config  *TriggerConfig
	ID      string // best-effort identity for logging, set even when invalid
	Invalid string // non-empty when the row failed validation
}

// ParseTriggerConfig validates a raw row into a typed config. Every failure
// produces an Invalid row rather than an error so one malformed row cannot
// stop a cycle.
func ParseTriggerConfig(raw RawTriggerConfig) TriggerRow {
	invalid := func(reason string) TriggerRow {
		return TriggerRow{ID: raw.ID, Invalid: reason}
	}

	if strings.TrimSpace(raw.ID) == "" {
		return invalid("missing id")
	}
	if strings.TrimSpace(raw.Pair) == "" {
		return invalid("missing pair")
	}

	threshold, err := decimal.NewFromString(raw.ThresholdPrice)
	if err != nil {
		return invalid(fmt.Sprintf("bad threshold_price %q", raw.ThresholdPrice))
	}
	if threshold.LessThanOrEqual(decimal.Zero) {
		return invalid("threshold_price must be positive")
	}

	thresholdType, err := ParseThresholdType(raw.ThresholdType)
	if err != nil {
		return invalid(err.Error())
	}

	direction, err := ParseDirection(raw.Direction)
	if err != nil {
		return invalid(err.Error())
	}

	volume, err := decimal.NewFromString(raw.Volume)
	if err != nil {
		return invalid(fmt.Sprintf("bad volume %q", raw.Volume))
	}
	if volume.LessThanOrEqual(decimal.Zero) {
		return invalid("volume must be positive")
	}

	offset, err := decimal.NewFromString(raw.TrailingOffset)
	if err != nil {
		return invalid(fmt.Sprintf("bad trailing_offset_percent %q", raw.TrailingOffset))
	}
	if offset.LessThanOrEqual(decimal.Zero) {
		return invalid("trailing_offset_percent must be positive")
	}

	return TriggerRow{
		ID: raw.ID,
		Config: &TriggerConfig{
			ID:              strings.TrimSpace(raw.ID),
			Pair:            strings.TrimSpace(raw.Pair),
			ThresholdPrice:  threshold,
			ThresholdType:   thresholdType,
			Direction:       direction,
			Volume:          volume,
			TrailingOffset:  offset,
			Enabled:         raw.Enabled,
			LinkedTriggerID: strings.TrimSpace(raw.LinkedTriggerID),
		},
	}
}
