package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"options-analyzer/internal/errors"
)

// OptionSide identifies the call or put side of a strike.
type OptionSide string

const (
	CallSide OptionSide = "CE"
	PutSide  OptionSide = "PE"
)

// Greeks holds the computed option Greeks for one side of a strike.
// Valid is false when the Greeks could not be computed (missing or
// non-positive implied volatility); the numeric fields are then zero
// and must not be used.
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
	Valid bool
}

// OptionQuote holds the market data for one side (CE or PE) of a strike.
type OptionQuote struct {
	LTP      float64
	OI       int64
	OIChange int64
	Volume   int64
	IV       float64 // percent, as supplied by the chain (e.g. 15.2)
	BidPrice float64
	BidQty   int64
	AskPrice float64
	AskQty   int64
	Greeks   Greeks
}

// HasQuote reports whether the side carries a usable bid/ask/LTP.
func (q *OptionQuote) HasQuote() bool {
	return q != nil && q.LTP > 0 && q.BidPrice > 0 && q.AskPrice > 0
}

// StrikeRow is a single strike of the chain with both sides.
// Either side may be nil when the exchange did not publish it.
type StrikeRow struct {
	StrikePrice float64
	Call        *OptionQuote
	Put         *OptionQuote
}

// Side returns the quote for the requested side, which may be nil.
func (r *StrikeRow) Side(side OptionSide) *OptionQuote {
	if side == CallSide {
		return r.Call
	}
	return r.Put
}

// OptionChainSnapshot is one immutable per-tick view of the chain.
// Strikes are unique and sorted ascending by strike price.
type OptionChainSnapshot struct {
	Symbol       string
	Timestamp    time.Time
	SpotPrice    float64
	PrevClose    float64
	ExpiryDate   time.Time
	DaysToExpiry int
	Strikes      []StrikeRow
}

// Validate checks the snapshot invariants: at least one strike,
// positive spot, and unique, ascending strikes.
func (s *OptionChainSnapshot) Validate() error {
	if len(s.Strikes) == 0 {
		return errors.ErrEmptyChain
	}
	if s.SpotPrice <= 0 {
		return fmt.Errorf("snapshot has non-positive spot price %.2f", s.SpotPrice)
	}
	for i := 1; i < len(s.Strikes); i++ {
		if s.Strikes[i].StrikePrice <= s.Strikes[i-1].StrikePrice {
			return fmt.Errorf("strikes not strictly ascending at index %d (%.2f after %.2f)",
				i, s.Strikes[i].StrikePrice, s.Strikes[i-1].StrikePrice)
		}
	}
	return nil
}

// SortStrikes orders the strike rows ascending. Feed adapters call this
// once at construction so the engine can rely on the ordering invariant.
func (s *OptionChainSnapshot) SortStrikes() {
	sort.Slice(s.Strikes, func(i, j int) bool {
		return s.Strikes[i].StrikePrice < s.Strikes[j].StrikePrice
	})
}

// ATMStrike returns the strike nearest to the current spot price.
// Returns 0 when the snapshot has no strikes.
func (s *OptionChainSnapshot) ATMStrike() float64 {
	if len(s.Strikes) == 0 {
		return 0
	}
	best := s.Strikes[0].StrikePrice
	bestDist := math.Abs(best - s.SpotPrice)
	for _, row := range s.Strikes[1:] {
		d := math.Abs(row.StrikePrice - s.SpotPrice)
		if d < bestDist {
			best, bestDist = row.StrikePrice, d
		}
	}
	return best
}

// Row returns the strike row for an exact strike price, or nil.
func (s *OptionChainSnapshot) Row(strike float64) *StrikeRow {
	idx := sort.Search(len(s.Strikes), func(i int) bool {
		return s.Strikes[i].StrikePrice >= strike
	})
	if idx < len(s.Strikes) && s.Strikes[idx].StrikePrice == strike {
		return &s.Strikes[idx]
	}
	return nil
}

// StrikesNear returns the rows within width points of the given strike,
// in ascending order.
func (s *OptionChainSnapshot) StrikesNear(strike, width float64) []StrikeRow {
	var rows []StrikeRow
	for _, row := range s.Strikes {
		if math.Abs(row.StrikePrice-strike) <= width {
			rows = append(rows, row)
		}
	}
	return rows
}

// TimeToExpiryYears returns the year fraction until expiry, measured
// from the snapshot timestamp and clamped at zero.
func (s *OptionChainSnapshot) TimeToExpiryYears() float64 {
	if s.ExpiryDate.IsZero() || !s.ExpiryDate.After(s.Timestamp) {
		return 0
	}
	return s.ExpiryDate.Sub(s.Timestamp).Hours() / 24 / 365
}
