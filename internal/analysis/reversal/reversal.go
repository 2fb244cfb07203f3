// Package reversal spots divergences between price direction and
// option positioning near the ATM strike.
package reversal

import (
	"time"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/models"
)

// Config tunes the divergence detector.
type Config struct {
	// Window bounds the observation history kept per strike.
	Window int
	// MinConsecutive is how many consecutive ticks the same divergence
	// direction must repeat before an alert fires.
	MinConsecutive int
	// MinScore is the per-tick divergence score required for the tick
	// to count toward the streak.
	MinScore float64
	// Cooldown suppresses repeat alerts for the same strike and
	// direction.
	Cooldown time.Duration
	// ATMWindow is the price width around ATM that is scanned.
	ATMWindow float64
}

// DefaultConfig returns the regular-session reversal parameters.
func DefaultConfig() Config {
	return Config{
		Window:         10,
		MinConsecutive: 2,
		MinScore:       2,
		Cooldown:       15 * time.Minute,
		ATMWindow:      100,
	}
}

// Alert is a confirmed reversal warning at a strike.
type Alert struct {
	Strike    float64
	Direction analysis.Direction
	Score     float64
	Streak    int
	Timestamp time.Time
}

type streakKey struct {
	strike    float64
	direction analysis.Direction
}

// Detector accumulates per-strike divergence streaks. Single-threaded,
// driven by the engine tick loop.
type Detector struct {
	cfg       Config
	streaks   map[streakKey]int
	lastAlert map[streakKey]time.Time
}

// NewDetector creates a reversal detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:       cfg,
		streaks:   make(map[streakKey]int),
		lastAlert: make(map[streakKey]time.Time),
	}
}

// Reset clears all streaks and cooldowns after a feed gap.
func (d *Detector) Reset() {
	d.streaks = make(map[streakKey]int)
	d.lastAlert = make(map[streakKey]time.Time)
}

// Update scores the ATM neighborhood of current against previous and
// returns any alerts whose streak just reached the threshold. A nil
// previous only clears stale streaks.
func (d *Detector) Update(current, previous *models.OptionChainSnapshot) []Alert {
	if previous == nil {
		d.streaks = make(map[streakKey]int)
		return nil
	}

	priceUp := current.SpotPrice > previous.SpotPrice
	priceDown := current.SpotPrice < previous.SpotPrice

	atm := current.ATMStrike()
	active := make(map[streakKey]bool)
	var alerts []Alert

	for _, row := range current.StrikesNear(atm, d.cfg.ATMWindow) {
		row := row
		prevRow := previous.Row(row.StrikePrice)
		if prevRow == nil || row.Call == nil || row.Put == nil ||
			prevRow.Call == nil || prevRow.Put == nil {
			continue
		}

		downScore := d.scoreDown(&row, prevRow)
		upScore := d.scoreUp(&row, prevRow)

		// A reversal needs positioning to lean against the tape.
		if priceUp && downScore >= d.cfg.MinScore {
			if a := d.advance(streakKey{row.StrikePrice, analysis.DirectionDown}, downScore, current.Timestamp, active); a != nil {
				alerts = append(alerts, *a)
			}
		}
		if priceDown && upScore >= d.cfg.MinScore {
			if a := d.advance(streakKey{row.StrikePrice, analysis.DirectionUp}, upScore, current.Timestamp, active); a != nil {
				alerts = append(alerts, *a)
			}
		}
	}

	// Streaks that did not recur this tick break.
	for k := range d.streaks {
		if !active[k] {
			delete(d.streaks, k)
		}
	}
	return alerts
}

// scoreDown scores the bearish divergence at one strike: call writers
// covering while put interest builds with a put-skewed IV, optionally
// confirmed by sell pressure in the call book.
func (d *Detector) scoreDown(row, prev *models.StrikeRow) float64 {
	var score float64
	callUnwind := row.Call.OI < prev.Call.OI
	putBuild := row.Put.OI > prev.Put.OI
	if callUnwind && putBuild && row.Put.IV > row.Call.IV {
		score += 2
	}
	if row.Call.AskQty > row.Call.BidQty {
		score++
	}
	return score
}

// scoreUp mirrors scoreDown for bullish divergence.
func (d *Detector) scoreUp(row, prev *models.StrikeRow) float64 {
	var score float64
	putUnwind := row.Put.OI < prev.Put.OI
	callBuild := row.Call.OI > prev.Call.OI
	if putUnwind && callBuild && row.Call.IV > row.Put.IV {
		score += 2
	}
	if row.Put.AskQty > row.Put.BidQty {
		score++
	}
	return score
}

// advance bumps the streak for key and returns an alert exactly when
// the streak reaches the threshold outside the cooldown window.
func (d *Detector) advance(key streakKey, score float64, ts time.Time, active map[streakKey]bool) *Alert {
	active[key] = true
	d.streaks[key]++
	if d.streaks[key] > d.cfg.Window {
		d.streaks[key] = d.cfg.Window
	}
	if d.streaks[key] < d.cfg.MinConsecutive {
		return nil
	}
	if last, ok := d.lastAlert[key]; ok && ts.Sub(last) < d.cfg.Cooldown {
		return nil
	}
	d.lastAlert[key] = ts
	return &Alert{
		Strike:    key.strike,
		Direction: key.direction,
		Score:     score,
		Streak:    d.streaks[key],
		Timestamp: ts,
	}
}
