// Package analysis provides the option-chain analysis building blocks:
// Greek computation, bias scoring, support/resistance zone detection,
// reversal detection and signal generation.
package analysis

import (
	"fmt"
	"time"

	"options-analyzer/internal/models"
)

// Classification is the directional market verdict derived from the
// total bias score.
type Classification string

const (
	StrongBullish Classification = "STRONG_BULLISH"
	Bullish       Classification = "BULLISH"
	Neutral       Classification = "NEUTRAL"
	Bearish       Classification = "BEARISH"
	StrongBearish Classification = "STRONG_BEARISH"
)

// Classify maps a total bias score to its verdict. The strong
// thresholds take precedence over the normal ones.
func Classify(total, strong, normal float64) Classification {
	switch {
	case total >= strong:
		return StrongBullish
	case total >= normal:
		return Bullish
	case total <= -strong:
		return StrongBearish
	case total <= -normal:
		return Bearish
	default:
		return Neutral
	}
}

// IsBullish reports whether the classification is on the bullish side.
func (c Classification) IsBullish() bool {
	return c == Bullish || c == StrongBullish
}

// IsBearish reports whether the classification is on the bearish side.
func (c Classification) IsBearish() bool {
	return c == Bearish || c == StrongBearish
}

// BiasFactor is one weighted component of the bias score.
// Contribution is bounded to [-Weight, +Weight].
type BiasFactor struct {
	Name         string
	RawValue     float64
	Weight       float64
	Contribution float64
}

// BiasScore is the per-tick directional bias of the chain.
type BiasScore struct {
	Total          float64
	Classification Classification
	Factors        []BiasFactor
	Timestamp      time.Time
	// Partial is true when one or more factors defaulted to neutral
	// because history or quote fields were missing.
	Partial bool
}

// ZoneKind marks a price level as support or resistance.
type ZoneKind string

const (
	ZoneSupport    ZoneKind = "SUPPORT"
	ZoneResistance ZoneKind = "RESISTANCE"
)

// SRZone is a confirmed support/resistance level derived from OI
// concentration. PriceLevel is the OI-weighted centroid of the merged
// candidate strikes.
type SRZone struct {
	PriceLevel     float64
	Kind           ZoneKind
	Strength       float64 // combined OI backing the level
	ConfirmedTicks int
}

// SignalKind enumerates the emitted signal types.
type SignalKind string

const (
	SignalTradeEntry     SignalKind = "TRADE_ENTRY"
	SignalReversalAlert  SignalKind = "REVERSAL_ALERT"
	SignalLiquiditySpike SignalKind = "LIQUIDITY_SPIKE"
	SignalExpiry         SignalKind = "EXPIRY_SIGNAL"
)

// Signal is an immutable trade/alert emission. Target and stop-loss are
// set for entry-style signals only.
type Signal struct {
	ID             string
	Kind           SignalKind
	Strike         float64
	Side           models.OptionSide
	EntryPrice     float64
	TargetPrice    float64
	StopLossPrice  float64
	BiasTotal      float64
	Classification Classification
	Timestamp      time.Time
	Reason         string
}

// DedupKey identifies a signal for cooldown purposes: repeated signals
// with the same key are suppressed inside the cooldown window.
func (s *Signal) DedupKey() string {
	return fmt.Sprintf("%s|%s|%.2f", s.Kind, s.Side, s.Strike)
}

// Direction is a reversal direction.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)
