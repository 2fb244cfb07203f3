// Package signals turns per-tick analysis results into deduplicated
// trade and alert signals.
package signals

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/analysis/expiry"
	"options-analyzer/internal/analysis/reversal"
	"options-analyzer/internal/analysis/zones"
	"options-analyzer/internal/models"
)

// Config tunes signal generation.
type Config struct {
	// ZoneTolerance is how close the spot must sit to a zone for an
	// entry, in index points.
	ZoneTolerance float64
	// TargetFactor scales the strike-to-opposite-zone distance into a
	// premium target.
	TargetFactor float64
	// ExpiryFallbackMult is the premium target multiplier used on
	// expiry day when no opposite zone exists.
	ExpiryFallbackMult float64
	// StopLossFraction of the entry premium.
	StopLossFraction float64
	// RequireStrong demands a strong classification for entries
	// instead of any directional one.
	RequireStrong bool
	// DedupCooldown suppresses identical signals within the window.
	DedupCooldown time.Duration
	// SpikeSigma is the liquidity spike threshold in standard
	// deviations over the trailing volume-delta distribution.
	SpikeSigma float64
	// SpikeWindow is how many per-strike samples the trailing
	// distribution keeps.
	SpikeWindow int
	// SpikeMinSamples gates spike detection until the distribution
	// has enough history.
	SpikeMinSamples int
	// ExpiryEntryThreshold is the absolute expiry bias score needed
	// for an expiry-day entry.
	ExpiryEntryThreshold float64
	// ATMWindow bounds the strikes scanned for expiry entries and
	// liquidity spikes.
	ATMWindow float64
}

// DefaultConfig returns production signal parameters.
func DefaultConfig() Config {
	return Config{
		ZoneTolerance:        20,
		TargetFactor:         0.5,
		ExpiryFallbackMult:   1.3,
		StopLossFraction:     0.20,
		DedupCooldown:        15 * time.Minute,
		SpikeSigma:           3,
		SpikeWindow:          200,
		SpikeMinSamples:      30,
		ExpiryEntryThreshold: expiry.DefaultEntryThreshold,
		ATMWindow:            100,
	}
}

// Input carries one tick's analysis outputs into signal generation.
type Input struct {
	Current     *models.OptionChainSnapshot
	Previous    *models.OptionChainSnapshot
	Bias        analysis.BiasScore
	Zones       *zones.Detector
	Mode        expiry.Mode
	AfterCutoff bool
	Reversals   []reversal.Alert
}

// Generator produces signals and owns the dedup and trailing-liquidity
// state. Single-threaded, driven by the engine.
type Generator struct {
	cfg       Config
	lastEmit  map[string]time.Time
	volDeltas []float64
	oiDeltas  []float64
}

// NewGenerator creates a signal generator.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg, lastEmit: make(map[string]time.Time)}
}

// Reset clears dedup and trailing state after a feed gap.
func (g *Generator) Reset() {
	g.lastEmit = make(map[string]time.Time)
	g.volDeltas = nil
	g.oiDeltas = nil
}

// Generate emits the signals for one tick. Strikes missing required
// quote fields are skipped without failing the tick.
func (g *Generator) Generate(in Input) []analysis.Signal {
	var out []analysis.Signal

	if in.Mode == expiry.ModeExpiryDay {
		out = append(out, g.expiryEntries(in)...)
		if in.AfterCutoff {
			// Past the cutoff nothing but expiry-day signals goes out.
			return g.dedup(out, in.Current.Timestamp)
		}
	}

	out = append(out, g.tradeEntries(in)...)
	out = append(out, g.reversalAlerts(in)...)
	out = append(out, g.liquiditySpikes(in)...)

	return g.dedup(out, in.Current.Timestamp)
}

// tradeEntries emits a call entry when the spot sits on a confirmed
// support zone with a bullish chain, and the mirror put at resistance.
func (g *Generator) tradeEntries(in Input) []analysis.Signal {
	var out []analysis.Signal
	spot := in.Current.SpotPrice

	if g.directional(in.Bias.Classification, true) {
		if z := in.Zones.Nearest(spot, analysis.ZoneSupport); z != nil && math.Abs(spot-z.PriceLevel) <= g.cfg.ZoneTolerance {
			if s := g.entryAt(in, z, models.CallSide); s != nil {
				out = append(out, *s)
			}
		}
	}
	if g.directional(in.Bias.Classification, false) {
		if z := in.Zones.Nearest(spot, analysis.ZoneResistance); z != nil && math.Abs(spot-z.PriceLevel) <= g.cfg.ZoneTolerance {
			if s := g.entryAt(in, z, models.PutSide); s != nil {
				out = append(out, *s)
			}
		}
	}
	return out
}

func (g *Generator) directional(c analysis.Classification, bullish bool) bool {
	if bullish {
		if g.cfg.RequireStrong {
			return c == analysis.StrongBullish
		}
		return c.IsBullish()
	}
	if g.cfg.RequireStrong {
		return c == analysis.StrongBearish
	}
	return c.IsBearish()
}

// entryAt builds the entry signal at the strike nearest the zone.
// Returns nil when the quote is unusable.
func (g *Generator) entryAt(in Input, zone *analysis.SRZone, side models.OptionSide) *analysis.Signal {
	row := nearestRow(in.Current, zone.PriceLevel)
	if row == nil {
		return nil
	}
	quote := row.Side(side)
	if quote == nil || !quote.HasQuote() {
		return nil
	}

	target := g.target(in, row.StrikePrice, quote, side)
	stop := round2(quote.LTP * (1 - g.cfg.StopLossFraction))

	return &analysis.Signal{
		ID:             uuid.NewString(),
		Kind:           analysis.SignalTradeEntry,
		Strike:         row.StrikePrice,
		Side:           side,
		EntryPrice:     quote.LTP,
		TargetPrice:    target,
		StopLossPrice:  stop,
		BiasTotal:      in.Bias.Total,
		Classification: in.Bias.Classification,
		Timestamp:      in.Current.Timestamp,
		Reason:         fmt.Sprintf("%s bias at %s %.0f", in.Bias.Classification, zone.Kind, zone.PriceLevel),
	}
}

// target projects the premium move from the distance to the opposite
// zone, falling back to an implied-volatility move when no opposite
// zone is confirmed.
func (g *Generator) target(in Input, strike float64, quote *models.OptionQuote, side models.OptionSide) float64 {
	opposite := analysis.ZoneResistance
	if side == models.PutSide {
		opposite = analysis.ZoneSupport
	}
	if z := in.Zones.Nearest(in.Current.SpotPrice, opposite); z != nil {
		dist := z.PriceLevel - strike
		if side == models.PutSide {
			dist = strike - z.PriceLevel
		}
		return round2(quote.LTP * (1 + dist/strike*g.cfg.TargetFactor))
	}
	if in.Mode == expiry.ModeExpiryDay {
		return round2(quote.LTP * g.cfg.ExpiryFallbackMult)
	}
	return round2(quote.LTP * (1 + quote.IV/100))
}

// expiryEntries scores the ATM neighborhood with the expiry bias score
// and emits entries where the score clears the threshold on a zone
// strike.
func (g *Generator) expiryEntries(in Input) []analysis.Signal {
	var out []analysis.Signal
	atm := in.Current.ATMStrike()

	for _, row := range in.Current.StrikesNear(atm, g.cfg.ATMWindow) {
		row := row
		if row.Call == nil || row.Put == nil {
			continue
		}
		var prevRow *models.StrikeRow
		if in.Previous != nil {
			prevRow = in.Previous.Row(row.StrikePrice)
		}
		score := expiry.Score(&row, prevRow, in.Current.SpotPrice)

		if score >= g.cfg.ExpiryEntryThreshold && g.onZone(in, row.StrikePrice, analysis.ZoneSupport) {
			if s := g.expirySignal(in, &row, models.CallSide, score); s != nil {
				out = append(out, *s)
			}
		}
		if score <= -g.cfg.ExpiryEntryThreshold && g.onZone(in, row.StrikePrice, analysis.ZoneResistance) {
			if s := g.expirySignal(in, &row, models.PutSide, score); s != nil {
				out = append(out, *s)
			}
		}
	}
	return out
}

func (g *Generator) onZone(in Input, strike float64, kind analysis.ZoneKind) bool {
	z := in.Zones.Nearest(strike, kind)
	return z != nil && math.Abs(z.PriceLevel-strike) <= g.cfg.ZoneTolerance
}

func (g *Generator) expirySignal(in Input, row *models.StrikeRow, side models.OptionSide, score float64) *analysis.Signal {
	quote := row.Side(side)
	if quote == nil || !quote.HasQuote() {
		return nil
	}
	target := g.target(in, row.StrikePrice, quote, side)
	return &analysis.Signal{
		ID:             uuid.NewString(),
		Kind:           analysis.SignalExpiry,
		Strike:         row.StrikePrice,
		Side:           side,
		EntryPrice:     quote.LTP,
		TargetPrice:    target,
		StopLossPrice:  round2(quote.LTP * (1 - g.cfg.StopLossFraction)),
		BiasTotal:      score,
		Classification: in.Bias.Classification,
		Timestamp:      in.Current.Timestamp,
		Reason:         fmt.Sprintf("expiry score %.1f on %s", score, kindFor(side)),
	}
}

func kindFor(side models.OptionSide) analysis.ZoneKind {
	if side == models.CallSide {
		return analysis.ZoneSupport
	}
	return analysis.ZoneResistance
}

// reversalAlerts lifts detector alerts into signals. A downward
// reversal favors puts, upward favors calls.
func (g *Generator) reversalAlerts(in Input) []analysis.Signal {
	var out []analysis.Signal
	for _, a := range in.Reversals {
		side := models.CallSide
		if a.Direction == analysis.DirectionDown {
			side = models.PutSide
		}
		out = append(out, analysis.Signal{
			ID:             uuid.NewString(),
			Kind:           analysis.SignalReversalAlert,
			Strike:         a.Strike,
			Side:           side,
			BiasTotal:      in.Bias.Total,
			Classification: in.Bias.Classification,
			Timestamp:      a.Timestamp,
			Reason:         fmt.Sprintf("%s reversal streak %d (score %.0f)", a.Direction, a.Streak, a.Score),
		})
	}
	return out
}

// liquiditySpikes flags strikes whose tick-over-tick volume or OI jump
// is an outlier against the trailing distribution of all per-strike
// jumps. The two series carry their own distributions; either one
// tripping its threshold emits the signal.
func (g *Generator) liquiditySpikes(in Input) []analysis.Signal {
	if in.Previous == nil {
		return nil
	}
	atm := in.Current.ATMStrike()

	type obs struct {
		strike   float64
		side     models.OptionSide
		volDelta float64
		oiDelta  float64
	}
	var current []obs
	for _, row := range in.Current.StrikesNear(atm, g.cfg.ATMWindow) {
		prevRow := in.Previous.Row(row.StrikePrice)
		if prevRow == nil {
			continue
		}
		for _, side := range []models.OptionSide{models.CallSide, models.PutSide} {
			q, p := row.Side(side), prevRow.Side(side)
			if q == nil || p == nil {
				continue
			}
			d := float64(q.Volume - p.Volume)
			if d < 0 {
				d = 0 // volume resets at session boundaries
			}
			current = append(current, obs{row.StrikePrice, side, d, math.Abs(float64(q.OI - p.OI))})
		}
	}

	volThreshold, volReady := g.spikeThreshold(g.volDeltas)
	oiThreshold, oiReady := g.spikeThreshold(g.oiDeltas)

	var out []analysis.Signal
	for _, o := range current {
		var reason string
		switch {
		case volReady && o.volDelta > volThreshold:
			reason = fmt.Sprintf("volume jump %.0f above %.0f", o.volDelta, volThreshold)
		case oiReady && o.oiDelta > oiThreshold:
			reason = fmt.Sprintf("OI jump %.0f above %.0f", o.oiDelta, oiThreshold)
		default:
			continue
		}
		out = append(out, analysis.Signal{
			ID:             uuid.NewString(),
			Kind:           analysis.SignalLiquiditySpike,
			Strike:         o.strike,
			Side:           o.side,
			BiasTotal:      in.Bias.Total,
			Classification: in.Bias.Classification,
			Timestamp:      in.Current.Timestamp,
			Reason:         reason,
		})
	}

	for _, o := range current {
		g.volDeltas = append(g.volDeltas, o.volDelta)
		g.oiDeltas = append(g.oiDeltas, o.oiDelta)
	}
	g.volDeltas = trimWindow(g.volDeltas, g.cfg.SpikeWindow)
	g.oiDeltas = trimWindow(g.oiDeltas, g.cfg.SpikeWindow)
	return out
}

// spikeThreshold returns mean + kσ over the trailing samples, or false
// until enough samples have accumulated to trust the distribution.
func (g *Generator) spikeThreshold(samples []float64) (float64, bool) {
	if len(samples) < g.cfg.SpikeMinSamples {
		return 0, false
	}
	mean, errM := stats.Mean(samples)
	sigma, errS := stats.StandardDeviation(samples)
	if errM != nil || errS != nil || sigma <= 0 {
		return 0, false
	}
	return mean + g.cfg.SpikeSigma*sigma, true
}

func trimWindow(s []float64, n int) []float64 {
	if excess := len(s) - n; excess > 0 {
		s = append(s[:0], s[excess:]...)
	}
	return s
}

// dedup drops signals re-emitted inside the cooldown window and
// records the survivors.
func (g *Generator) dedup(in []analysis.Signal, now time.Time) []analysis.Signal {
	var out []analysis.Signal
	for i := range in {
		key := in[i].DedupKey()
		if last, ok := g.lastEmit[key]; ok && now.Sub(last) < g.cfg.DedupCooldown {
			continue
		}
		g.lastEmit[key] = now
		out = append(out, in[i])
	}
	// Prune expired entries so the map does not grow all session.
	for key, last := range g.lastEmit {
		if now.Sub(last) >= g.cfg.DedupCooldown {
			delete(g.lastEmit, key)
		}
	}
	return out
}

func nearestRow(snap *models.OptionChainSnapshot, level float64) *models.StrikeRow {
	var best *models.StrikeRow
	bestDist := math.MaxFloat64
	for i := range snap.Strikes {
		d := math.Abs(snap.Strikes[i].StrikePrice - level)
		if d < bestDist {
			best = &snap.Strikes[i]
			bestDist = d
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
