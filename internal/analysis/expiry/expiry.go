// Package expiry decides when the engine runs in expiry-day mode and
// scores per-strike expiry bias for settlement-day entries.
package expiry

import (
	"math"
	"time"

	"options-analyzer/internal/models"
)

// Mode selects which analysis profile the engine runs.
type Mode string

const (
	ModeRegular   Mode = "REGULAR"
	ModeExpiryDay Mode = "EXPIRY_DAY"
)

// DefaultEntryThreshold is the absolute expiry bias score required for
// an expiry-day entry.
const DefaultEntryThreshold = 1.5

// Controller owns the mode state machine. Expiry day is detected from
// the snapshot's days-to-expiry; past the cutoff time the engine stops
// taking fresh regular entries and emits expiry signals only.
type Controller struct {
	cutoffHour   int
	cutoffMinute int
	loc          *time.Location
	mode         Mode
}

// NewController creates a controller with the given entry cutoff
// time-of-day in loc.
func NewController(cutoffHour, cutoffMinute int, loc *time.Location) *Controller {
	return &Controller{
		cutoffHour:   cutoffHour,
		cutoffMinute: cutoffMinute,
		loc:          loc,
		mode:         ModeRegular,
	}
}

// ModeFor updates and returns the mode for the snapshot. The machine
// enters ExpiryDay when the tracked series expires today and returns
// to Regular once the next series (with days remaining) arrives.
func (c *Controller) ModeFor(snap *models.OptionChainSnapshot) Mode {
	if snap.DaysToExpiry == 0 {
		c.mode = ModeExpiryDay
	} else {
		c.mode = ModeRegular
	}
	return c.mode
}

// Mode returns the last computed mode.
func (c *Controller) Mode() Mode { return c.mode }

// AfterCutoff reports whether now is past the entry cutoff
// time-of-day.
func (c *Controller) AfterCutoff(now time.Time) bool {
	local := now.In(c.loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(),
		c.cutoffHour, c.cutoffMinute, 0, 0, c.loc)
	return !local.Before(cutoff)
}

// Score computes the expiry-day bias of one strike. Positive favors
// calls, negative favors puts. prevRow supplies premium direction; a
// nil prevRow leaves the OI-plus-price components neutral.
func Score(row, prevRow *models.StrikeRow, spot float64) float64 {
	if row == nil || row.Call == nil || row.Put == nil {
		return 0
	}
	ce, pe := row.Call, row.Put
	var score float64

	// OI building while premium moves: fresh longs push with price,
	// writers lean against it.
	if prevRow != nil && prevRow.Call != nil && prevRow.Put != nil {
		if ce.OIChange > 0 && ce.LTP > prevRow.Call.LTP {
			score++
		}
		if pe.OIChange > 0 && pe.LTP > prevRow.Put.LTP {
			score--
		}
		if ce.OIChange > 0 && ce.LTP < prevRow.Call.LTP {
			score--
		}
		if pe.OIChange > 0 && pe.LTP < prevRow.Put.LTP {
			score++
		}
	}

	// Bid quantity dominance at 1.5x.
	if float64(ce.BidQty) > float64(pe.BidQty)*1.5 {
		score++
	}
	if float64(pe.BidQty) > float64(ce.BidQty)*1.5 {
		score--
	}

	// Volume churning past 2x OI is likely scalping noise, discount
	// the side doing it.
	if ce.Volume > 2*ce.OI {
		score -= 0.5
	}
	if pe.Volume > 2*pe.OI {
		score += 0.5
	}

	// Premium proximity: the side trading richer relative to spot
	// carries the directional demand.
	if math.Abs(ce.LTP-spot) < math.Abs(pe.LTP-spot) {
		score += 0.5
	} else {
		score -= 0.5
	}

	return score
}
