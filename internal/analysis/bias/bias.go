// Package bias computes the weighted directional bias of an option
// chain from two consecutive snapshots.
package bias

import (
	"math"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/models"
)

// Factor names, stable for configuration and reporting.
const (
	FactorChgOI       = "ChgOI"
	FactorVolume      = "Volume"
	FactorGamma       = "Gamma"
	FactorAskQty      = "AskQty"
	FactorBidQty      = "BidQty"
	FactorIV          = "IV"
	FactorDeltaVolume = "DeltaVolumePrice"
)

// Weights holds the per-factor weights of the bias score. Each factor
// contributes exactly -w, 0 or +w to the total.
type Weights struct {
	ChgOI       float64
	Volume      float64
	Gamma       float64
	AskQty      float64
	BidQty      float64
	IV          float64
	DeltaVolume float64
}

// DefaultWeights returns the regular-session factor weights. OI change
// carries double weight: writing activity leads price on index options.
func DefaultWeights() Weights {
	return Weights{
		ChgOI:       2,
		Volume:      1,
		Gamma:       1,
		AskQty:      1,
		BidQty:      1,
		IV:          1,
		DeltaVolume: 1,
	}
}

// ExpiryWeights returns the expiry-day weights: OI and gamma dominate
// while volume and IV are discounted, since pin risk near settlement
// makes positioning more informative than flow.
func ExpiryWeights() Weights {
	return Weights{
		ChgOI:       3,
		Volume:      0.5,
		Gamma:       2,
		AskQty:      1,
		BidQty:      1,
		IV:          0.5,
		DeltaVolume: 1,
	}
}

// Thresholds holds the classification cut-offs. Strong takes
// precedence over Normal on both sides.
type Thresholds struct {
	Strong float64
	Normal float64
}

// DefaultThresholds returns the fixed classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Strong: 4, Normal: 2}
}

// Scorer computes bias scores. It is stateless: all history it needs
// arrives as the previous snapshot argument.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
	atmWindow  float64 // points around the ATM strike considered "near ATM"
}

// NewScorer creates a scorer with the given weights, thresholds and
// ATM window width in index points.
func NewScorer(weights Weights, thresholds Thresholds, atmWindow float64) *Scorer {
	return &Scorer{weights: weights, thresholds: thresholds, atmWindow: atmWindow}
}

// SetWeights swaps the factor weights (used when entering expiry mode).
func (s *Scorer) SetWeights(w Weights) { s.weights = w }

// Score computes the bias of current relative to previous. A nil
// previous (first tick, or a cadence gap) yields an all-neutral,
// partial score rather than an error.
func (s *Scorer) Score(current, previous *models.OptionChainSnapshot) analysis.BiasScore {
	score := analysis.BiasScore{Timestamp: current.Timestamp}

	if previous == nil {
		for _, f := range s.neutralFactors() {
			score.Factors = append(score.Factors, f)
		}
		score.Partial = true
		score.Classification = analysis.Classify(0, s.thresholds.Strong, s.thresholds.Normal)
		return score
	}

	atm := current.ATMStrike()
	near := pairNear(current, previous, atm, s.atmWindow)
	atmPair := pairAt(current, previous, atm)

	factors := []analysis.BiasFactor{
		s.chgOIFactor(near, &score.Partial),
		s.volumeFactor(near, &score.Partial),
		s.gammaFactor(near),
		s.askQtyFactor(atmPair, &score.Partial),
		s.bidQtyFactor(atmPair, &score.Partial),
		s.ivFactor(atmPair, &score.Partial),
		s.deltaVolumeFactor(near, current, previous),
	}

	for _, f := range factors {
		score.Factors = append(score.Factors, f)
		score.Total += f.Contribution
	}
	score.Classification = analysis.Classify(score.Total, s.thresholds.Strong, s.thresholds.Normal)
	return score
}

// strikePair joins the current and previous quote for one strike.
type strikePair struct {
	strike   float64
	call     *models.OptionQuote
	put      *models.OptionQuote
	prevCall *models.OptionQuote
	prevPut  *models.OptionQuote
}

func pairNear(curr, prev *models.OptionChainSnapshot, atm, width float64) []strikePair {
	var pairs []strikePair
	for _, row := range curr.StrikesNear(atm, width) {
		prevRow := prev.Row(row.StrikePrice)
		if prevRow == nil {
			continue
		}
		pairs = append(pairs, strikePair{
			strike:   row.StrikePrice,
			call:     row.Call,
			put:      row.Put,
			prevCall: prevRow.Call,
			prevPut:  prevRow.Put,
		})
	}
	return pairs
}

func pairAt(curr, prev *models.OptionChainSnapshot, atm float64) *strikePair {
	row := curr.Row(atm)
	prevRow := prev.Row(atm)
	if row == nil || prevRow == nil {
		return nil
	}
	return &strikePair{
		strike:   atm,
		call:     row.Call,
		put:      row.Put,
		prevCall: prevRow.Call,
		prevPut:  prevRow.Put,
	}
}

// chgOIFactor: rising put OI with falling call OI near ATM means put
// writing, which is bullish, and vice versa.
func (s *Scorer) chgOIFactor(pairs []strikePair, partial *bool) analysis.BiasFactor {
	var dCall, dPut int64
	seen := false
	for _, p := range pairs {
		if p.call != nil && p.prevCall != nil {
			dCall += p.call.OI - p.prevCall.OI
			seen = true
		}
		if p.put != nil && p.prevPut != nil {
			dPut += p.put.OI - p.prevPut.OI
			seen = true
		}
	}
	if !seen {
		*partial = true
		return s.signed(FactorChgOI, 0, s.weights.ChgOI)
	}
	return s.signed(FactorChgOI, float64(dPut-dCall), s.weights.ChgOI)
}

// volumeFactor: put volume growing faster than call volume near ATM is
// bullish (hedging supply below the market), and vice versa.
func (s *Scorer) volumeFactor(pairs []strikePair, partial *bool) analysis.BiasFactor {
	var dCall, dPut int64
	seen := false
	for _, p := range pairs {
		if p.call != nil && p.prevCall != nil {
			dCall += p.call.Volume - p.prevCall.Volume
			seen = true
		}
		if p.put != nil && p.prevPut != nil {
			dPut += p.put.Volume - p.prevPut.Volume
			seen = true
		}
	}
	if !seen {
		*partial = true
		return s.signed(FactorVolume, 0, s.weights.Volume)
	}
	return s.signed(FactorVolume, float64(dPut-dCall), s.weights.Volume)
}

// gammaFactor: aggregate put-side gamma exceeding call-side gamma near
// ATM is bullish. Sides with invalid Greeks are skipped.
func (s *Scorer) gammaFactor(pairs []strikePair) analysis.BiasFactor {
	var callGamma, putGamma float64
	for _, p := range pairs {
		if p.call != nil && p.call.Greeks.Valid {
			callGamma += p.call.Greeks.Gamma * float64(p.call.OI)
		}
		if p.put != nil && p.put.Greeks.Valid {
			putGamma += p.put.Greeks.Gamma * float64(p.put.OI)
		}
	}
	return s.signed(FactorGamma, putGamma-callGamma, s.weights.Gamma)
}

// askQtyFactor: put ask quantity at the ATM strike exceeding call ask
// quantity signals supply pressure on puts, which is bullish.
func (s *Scorer) askQtyFactor(p *strikePair, partial *bool) analysis.BiasFactor {
	if p == nil || p.call == nil || p.put == nil {
		*partial = true
		return s.signed(FactorAskQty, 0, s.weights.AskQty)
	}
	return s.signed(FactorAskQty, float64(p.put.AskQty-p.call.AskQty), s.weights.AskQty)
}

// bidQtyFactor: put bid quantity at ATM exceeding call bid quantity is
// bullish.
func (s *Scorer) bidQtyFactor(p *strikePair, partial *bool) analysis.BiasFactor {
	if p == nil || p.call == nil || p.put == nil {
		*partial = true
		return s.signed(FactorBidQty, 0, s.weights.BidQty)
	}
	return s.signed(FactorBidQty, float64(p.put.BidQty-p.call.BidQty), s.weights.BidQty)
}

// ivFactor: call IV rising faster than put IV at ATM signals a bullish
// skew unwind.
func (s *Scorer) ivFactor(p *strikePair, partial *bool) analysis.BiasFactor {
	if p == nil || p.call == nil || p.put == nil || p.prevCall == nil || p.prevPut == nil {
		*partial = true
		return s.signed(FactorIV, 0, s.weights.IV)
	}
	dCall := p.call.IV - p.prevCall.IV
	dPut := p.put.IV - p.prevPut.IV
	return s.signed(FactorIV, dCall-dPut, s.weights.IV)
}

// deltaVolumeFactor: bullish when the spot move agrees with the
// delta-weighted volume flow near ATM, bearish when they disagree.
func (s *Scorer) deltaVolumeFactor(pairs []strikePair, curr, prev *models.OptionChainSnapshot) analysis.BiasFactor {
	priceMove := curr.SpotPrice - prev.SpotPrice

	var flow float64
	for _, p := range pairs {
		if p.call != nil && p.prevCall != nil && p.call.Greeks.Valid {
			flow += p.call.Greeks.Delta * float64(p.call.Volume-p.prevCall.Volume)
		}
		if p.put != nil && p.prevPut != nil && p.put.Greeks.Valid {
			flow += p.put.Greeks.Delta * float64(p.put.Volume-p.prevPut.Volume)
		}
	}

	if priceMove == 0 || flow == 0 {
		return s.signed(FactorDeltaVolume, 0, s.weights.DeltaVolume)
	}
	raw := priceMove * flow // positive when direction agrees
	return s.signed(FactorDeltaVolume, raw, s.weights.DeltaVolume)
}

// signed turns a raw value into a bounded contribution of exactly
// -weight, 0 or +weight.
func (s *Scorer) signed(name string, raw, weight float64) analysis.BiasFactor {
	f := analysis.BiasFactor{Name: name, RawValue: raw, Weight: weight}
	switch {
	case raw > 0:
		f.Contribution = weight
	case raw < 0:
		f.Contribution = -weight
	}
	return f
}

func (s *Scorer) neutralFactors() []analysis.BiasFactor {
	names := []struct {
		name   string
		weight float64
	}{
		{FactorChgOI, s.weights.ChgOI},
		{FactorVolume, s.weights.Volume},
		{FactorGamma, s.weights.Gamma},
		{FactorAskQty, s.weights.AskQty},
		{FactorBidQty, s.weights.BidQty},
		{FactorIV, s.weights.IV},
		{FactorDeltaVolume, s.weights.DeltaVolume},
	}
	factors := make([]analysis.BiasFactor, 0, len(names))
	for _, n := range names {
		factors = append(factors, analysis.BiasFactor{Name: n.name, Weight: n.weight})
	}
	return factors
}

// MaxTotal returns the maximum absolute total the configured weights
// can produce.
func (s *Scorer) MaxTotal() float64 {
	w := s.weights
	return math.Abs(w.ChgOI) + math.Abs(w.Volume) + math.Abs(w.Gamma) +
		math.Abs(w.AskQty) + math.Abs(w.BidQty) + math.Abs(w.IV) + math.Abs(w.DeltaVolume)
}
