package expiry

import (
	"testing"
	"time"

	"options-analyzer/internal/models"
)

func TestModeFor(t *testing.T) {
	c := NewController(14, 30, time.UTC)

	if got := c.Mode(); got != ModeRegular {
		t.Fatalf("initial mode = %s, want REGULAR", got)
	}
	if got := c.ModeFor(&models.OptionChainSnapshot{DaysToExpiry: 3}); got != ModeRegular {
		t.Errorf("3 days out = %s, want REGULAR", got)
	}
	if got := c.ModeFor(&models.OptionChainSnapshot{DaysToExpiry: 0}); got != ModeExpiryDay {
		t.Errorf("settlement day = %s, want EXPIRY_DAY", got)
	}
	// Next weekly series rolls the machine back.
	if got := c.ModeFor(&models.OptionChainSnapshot{DaysToExpiry: 7}); got != ModeRegular {
		t.Errorf("next series = %s, want REGULAR", got)
	}
}

func TestAfterCutoff(t *testing.T) {
	c := NewController(14, 30, time.UTC)

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want bool
	}{
		{day.Add(14*time.Hour + 29*time.Minute), false},
		{day.Add(14*time.Hour + 30*time.Minute), true},
		{day.Add(15 * time.Hour), true},
		{day.Add(9 * time.Hour), false},
	}
	for _, tc := range cases {
		if got := c.AfterCutoff(tc.at); got != tc.want {
			t.Errorf("AfterCutoff(%s) = %v, want %v", tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func strikeRow(ceLTP, peLTP float64, ceOIChg, peOIChg int64, ceBidQty, peBidQty int64) *models.StrikeRow {
	return &models.StrikeRow{
		StrikePrice: 20000,
		Call: &models.OptionQuote{
			LTP: ceLTP, OI: 100000, OIChange: ceOIChg, Volume: 50000,
			BidPrice: ceLTP - 0.5, BidQty: ceBidQty, AskPrice: ceLTP + 0.5, AskQty: 100,
		},
		Put: &models.OptionQuote{
			LTP: peLTP, OI: 100000, OIChange: peOIChg, Volume: 50000,
			BidPrice: peLTP - 0.5, BidQty: peBidQty, AskPrice: peLTP + 0.5, AskQty: 100,
		},
	}
}

func TestScoreCallLongsBuilding(t *testing.T) {
	prev := strikeRow(100, 110, 0, 0, 100, 100)
	// Call OI adds while the call premium rises and trades richer.
	curr := strikeRow(120, 110, 5000, 0, 100, 100)

	got := Score(curr, prev, 20000)
	if got != 1.5 {
		t.Errorf("Score = %.1f, want 1.5 (fresh call longs + richer call premium)", got)
	}
}

func TestScorePutLongsBuilding(t *testing.T) {
	prev := strikeRow(110, 100, 0, 0, 100, 100)
	curr := strikeRow(110, 120, 0, 5000, 100, 100)

	got := Score(curr, prev, 20000)
	if got != -1.5 {
		t.Errorf("Score = %.1f, want -1.5 (fresh put longs + richer put premium)", got)
	}
}

func TestScoreBidQtyDominance(t *testing.T) {
	// No previous row: only the book and premium components apply.
	curr := strikeRow(120, 110, 5000, 0, 300, 100)

	got := Score(curr, nil, 20000)
	if got != 1.5 {
		t.Errorf("Score = %.1f, want 1.5 (call bid dominance + richer call premium)", got)
	}
}

func TestScoreChurnDiscount(t *testing.T) {
	curr := strikeRow(120, 110, 0, 0, 100, 100)
	curr.Call.Volume = 3 * curr.Call.OI // scalping churn on the call side

	got := Score(curr, nil, 20000)
	// +0.5 premium proximity, -0.5 churn discount.
	if got != 0 {
		t.Errorf("Score = %.1f, want 0", got)
	}
}

func TestScoreMissingSide(t *testing.T) {
	if got := Score(nil, nil, 20000); got != 0 {
		t.Errorf("nil row score = %.1f, want 0", got)
	}
	row := &models.StrikeRow{StrikePrice: 20000, Call: &models.OptionQuote{LTP: 120}}
	if got := Score(row, nil, 20000); got != 0 {
		t.Errorf("one-sided row score = %.1f, want 0", got)
	}
}
