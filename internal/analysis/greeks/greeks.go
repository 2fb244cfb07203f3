// Package greeks computes Black-Scholes-Merton option Greeks from
// chain-supplied implied volatility.
package greeks

import (
	"math"

	"options-analyzer/internal/models"
)

// TimeFloorYears is the minimum time-to-expiry used in the closed
// forms: one minute, expressed as a year fraction. Clamping here keeps
// every Greek finite as expiry approaches.
const TimeFloorYears = 1.0 / (365 * 24 * 60)

// Calculator prices European index option Greeks.
type Calculator struct {
	RiskFreeRate float64
}

// NewCalculator returns a calculator with the given annual risk-free rate.
func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// Compute returns the Greeks for one side of a strike. ivPercent is the
// chain-supplied implied volatility in percent (e.g. 15.2). A missing
// or non-positive IV, spot or strike yields an invalid sentinel result
// rather than an error: the caller degrades that side only.
func (c *Calculator) Compute(spot, strike, tYears, ivPercent float64, side models.OptionSide) models.Greeks {
	if ivPercent <= 0 || spot <= 0 || strike <= 0 {
		return models.Greeks{}
	}

	t := math.Max(tYears, TimeFloorYears)
	sigma := ivPercent / 100
	r := c.RiskFreeRate

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	pdf := normPDF(d1)

	var g models.Greeks
	g.Valid = true
	g.Gamma = pdf / (spot * sigma * sqrtT)
	g.Vega = spot * pdf * sqrtT / 100

	discount := math.Exp(-r * t)
	if side == models.CallSide {
		g.Delta = normCDF(d1)
		g.Theta = (-(spot*pdf*sigma)/(2*sqrtT) - r*strike*discount*normCDF(d2)) / 365
		g.Rho = strike * t * discount * normCDF(d2) / 100
	} else {
		g.Delta = -normCDF(-d1)
		g.Theta = (-(spot*pdf*sigma)/(2*sqrtT) + r*strike*discount*normCDF(-d2)) / 365
		g.Rho = -strike * t * discount * normCDF(-d2) / 100
	}

	return g
}

// Annotate fills the Greeks of every side of every strike in the
// snapshot in place. Sides without usable IV keep the invalid sentinel.
func (c *Calculator) Annotate(snap *models.OptionChainSnapshot) {
	t := snap.TimeToExpiryYears()
	for i := range snap.Strikes {
		row := &snap.Strikes[i]
		if row.Call != nil {
			row.Call.Greeks = c.Compute(snap.SpotPrice, row.StrikePrice, t, row.Call.IV, models.CallSide)
		}
		if row.Put != nil {
			row.Put.Greeks = c.Compute(snap.SpotPrice, row.StrikePrice, t, row.Put.IV, models.PutSide)
		}
	}
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
