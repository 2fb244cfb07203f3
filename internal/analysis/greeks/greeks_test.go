package greeks

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-analyzer/internal/models"
)

func TestComputeCallDelta(t *testing.T) {
	c := NewCalculator(0.065)

	// Deep ITM call approaches delta 1, deep OTM approaches 0.
	itm := c.Compute(20000, 18000, 7.0/365, 15, models.CallSide)
	otm := c.Compute(20000, 22000, 7.0/365, 15, models.CallSide)

	if !itm.Valid || !otm.Valid {
		t.Fatal("expected valid greeks for positive inputs")
	}
	if itm.Delta < 0.95 {
		t.Errorf("deep ITM call delta = %.4f, want > 0.95", itm.Delta)
	}
	if otm.Delta > 0.05 {
		t.Errorf("deep OTM call delta = %.4f, want < 0.05", otm.Delta)
	}
}

func TestComputePutDelta(t *testing.T) {
	c := NewCalculator(0.065)

	itm := c.Compute(20000, 22000, 7.0/365, 15, models.PutSide)
	otm := c.Compute(20000, 18000, 7.0/365, 15, models.PutSide)

	if itm.Delta > -0.95 {
		t.Errorf("deep ITM put delta = %.4f, want < -0.95", itm.Delta)
	}
	if otm.Delta < -0.05 {
		t.Errorf("deep OTM put delta = %.4f, want > -0.05", otm.Delta)
	}
}

func TestComputeInvalidInputs(t *testing.T) {
	c := NewCalculator(0.065)

	cases := []struct {
		name                 string
		spot, strike, tYears float64
		iv                   float64
	}{
		{"zero iv", 20000, 20000, 7.0 / 365, 0},
		{"negative iv", 20000, 20000, 7.0 / 365, -5},
		{"zero spot", 0, 20000, 7.0 / 365, 15},
		{"zero strike", 20000, 0, 7.0 / 365, 15},
	}
	for _, tc := range cases {
		g := c.Compute(tc.spot, tc.strike, tc.tYears, tc.iv, models.CallSide)
		if g.Valid {
			t.Errorf("%s: expected invalid sentinel", tc.name)
		}
		if g.Delta != 0 || g.Gamma != 0 {
			t.Errorf("%s: expected zeroed greeks, got delta=%.4f gamma=%.4f", tc.name, g.Delta, g.Gamma)
		}
	}
}

func TestComputeExpiryFloor(t *testing.T) {
	c := NewCalculator(0.065)

	// Zero and negative time clamp to the one-minute floor instead of
	// blowing up the closed forms.
	for _, tYears := range []float64{0, -1.0 / 365} {
		g := c.Compute(20000, 20000, tYears, 15, models.CallSide)
		if !g.Valid {
			t.Fatalf("t=%.4f: expected valid greeks at the time floor", tYears)
		}
		for name, v := range map[string]float64{
			"delta": g.Delta, "gamma": g.Gamma, "vega": g.Vega, "theta": g.Theta, "rho": g.Rho,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("t=%.4f: %s is not finite: %v", tYears, name, v)
			}
		}
	}
}

func TestAnnotate(t *testing.T) {
	c := NewCalculator(0.065)
	snap := &models.OptionChainSnapshot{
		Symbol:     "NIFTY",
		Timestamp:  time.Now(),
		SpotPrice:  20000,
		ExpiryDate: time.Now().Add(5 * 24 * time.Hour),
		Strikes: []models.StrikeRow{
			{StrikePrice: 20000, Call: &models.OptionQuote{IV: 14}, Put: &models.OptionQuote{IV: 15}},
			{StrikePrice: 20100, Call: &models.OptionQuote{IV: 0}, Put: nil},
		},
	}

	c.Annotate(snap)

	if !snap.Strikes[0].Call.Greeks.Valid || !snap.Strikes[0].Put.Greeks.Valid {
		t.Error("expected valid greeks on quoted ATM sides")
	}
	if snap.Strikes[1].Call.Greeks.Valid {
		t.Error("expected invalid sentinel on the zero-IV side")
	}
}

func TestProperty_GreeksBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	c := NewCalculator(0.065)

	properties.Property("call delta in [0,1], put delta in [-1,0], gamma and vega non-negative", prop.ForAll(
		func(spot, moneyness, tDays, iv float64) bool {
			strike := spot * moneyness
			tYears := tDays / 365

			call := c.Compute(spot, strike, tYears, iv, models.CallSide)
			put := c.Compute(spot, strike, tYears, iv, models.PutSide)

			if call.Delta < 0 || call.Delta > 1 {
				return false
			}
			if put.Delta < -1 || put.Delta > 0 {
				return false
			}
			return call.Gamma >= 0 && call.Vega >= 0 && put.Gamma >= 0 && put.Vega >= 0
		},
		gen.Float64Range(15000, 30000),
		gen.Float64Range(0.9, 1.1),
		gen.Float64Range(0.1, 30),
		gen.Float64Range(5, 60),
	))

	properties.Property("same-strike call and put share gamma and vega", prop.ForAll(
		func(spot, moneyness, tDays, iv float64) bool {
			strike := spot * moneyness
			tYears := tDays / 365

			call := c.Compute(spot, strike, tYears, iv, models.CallSide)
			put := c.Compute(spot, strike, tYears, iv, models.PutSide)

			return math.Abs(call.Gamma-put.Gamma) < 1e-12 && math.Abs(call.Vega-put.Vega) < 1e-9
		},
		gen.Float64Range(15000, 30000),
		gen.Float64Range(0.9, 1.1),
		gen.Float64Range(0.1, 30),
		gen.Float64Range(5, 60),
	))

	properties.TestingRun(t)
}
