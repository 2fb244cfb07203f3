package models

import (
	"math"
	"testing"
	"time"

	errs "options-analyzer/internal/errors"
)

func sampleChain(spot float64) *OptionChainSnapshot {
	return &OptionChainSnapshot{
		Symbol:    "NIFTY",
		Timestamp: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		SpotPrice: spot,
		Strikes: []StrikeRow{
			{StrikePrice: 19900, Call: &OptionQuote{LTP: 180, BidPrice: 179, AskPrice: 181}},
			{StrikePrice: 20000, Call: &OptionQuote{LTP: 120, BidPrice: 119, AskPrice: 121}},
			{StrikePrice: 20100, Put: &OptionQuote{LTP: 170, BidPrice: 169, AskPrice: 171}},
		},
	}
}

func TestValidate(t *testing.T) {
	snap := sampleChain(20000)
	if err := snap.Validate(); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}

	snap.SpotPrice = 0
	if err := snap.Validate(); err == nil {
		t.Error("expected error for zero spot")
	}

	snap = sampleChain(20000)
	snap.Strikes[2].StrikePrice = 19900 // duplicate
	if err := snap.Validate(); err == nil {
		t.Error("expected error for non-ascending strikes")
	}

	snap = sampleChain(20000)
	snap.Strikes = nil
	if err := snap.Validate(); !errs.Is(err, errs.ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain for strikeless snapshot, got %v", err)
	}
}

func TestATMStrike(t *testing.T) {
	cases := []struct {
		spot float64
		want float64
	}{
		{20000, 20000},
		{20049, 20000},
		{20051, 20100},
		{19000, 19900},
		{25000, 20100},
	}
	for _, tc := range cases {
		if got := sampleChain(tc.spot).ATMStrike(); got != tc.want {
			t.Errorf("ATMStrike(spot=%.0f) = %.0f, want %.0f", tc.spot, got, tc.want)
		}
	}

	empty := &OptionChainSnapshot{SpotPrice: 20000}
	if got := empty.ATMStrike(); got != 0 {
		t.Errorf("empty chain ATM = %.0f, want 0", got)
	}
}

func TestRow(t *testing.T) {
	snap := sampleChain(20000)

	row := snap.Row(20000)
	if row == nil || row.StrikePrice != 20000 {
		t.Fatalf("Row(20000) = %+v", row)
	}
	// The returned pointer aliases snapshot state.
	row.Call.LTP = 125
	if snap.Strikes[1].Call.LTP != 125 {
		t.Error("Row must return a pointer into the snapshot")
	}

	if snap.Row(20050) != nil {
		t.Error("expected nil for an unlisted strike")
	}
}

func TestStrikesNear(t *testing.T) {
	snap := sampleChain(20000)

	near := snap.StrikesNear(20000, 100)
	if len(near) != 3 {
		t.Errorf("width 100: got %d rows, want 3", len(near))
	}
	near = snap.StrikesNear(20000, 50)
	if len(near) != 1 || near[0].StrikePrice != 20000 {
		t.Errorf("width 50: got %+v", near)
	}
}

func TestSortStrikes(t *testing.T) {
	snap := sampleChain(20000)
	snap.Strikes[0], snap.Strikes[2] = snap.Strikes[2], snap.Strikes[0]

	snap.SortStrikes()
	if err := snap.Validate(); err != nil {
		t.Errorf("chain invalid after sort: %v", err)
	}
}

func TestHasQuote(t *testing.T) {
	var missing *OptionQuote
	if missing.HasQuote() {
		t.Error("nil quote must not be usable")
	}
	if (&OptionQuote{LTP: 100}).HasQuote() {
		t.Error("quote without a book must not be usable")
	}
	if !(&OptionQuote{LTP: 100, BidPrice: 99, AskPrice: 101}).HasQuote() {
		t.Error("full quote must be usable")
	}
}

func TestSide(t *testing.T) {
	row := &StrikeRow{
		StrikePrice: 20000,
		Call:        &OptionQuote{LTP: 120},
	}
	if row.Side(CallSide) == nil {
		t.Error("expected call quote")
	}
	if row.Side(PutSide) != nil {
		t.Error("expected nil put quote")
	}
}

func TestTimeToExpiryYears(t *testing.T) {
	ts := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	snap := &OptionChainSnapshot{Timestamp: ts, ExpiryDate: ts.Add(365 * 24 * time.Hour)}
	if got := snap.TimeToExpiryYears(); math.Abs(got-1) > 1e-9 {
		t.Errorf("one year out = %.6f, want 1", got)
	}

	past := &OptionChainSnapshot{Timestamp: ts, ExpiryDate: ts.Add(-time.Hour)}
	if got := past.TimeToExpiryYears(); got != 0 {
		t.Errorf("past expiry = %.6f, want 0", got)
	}

	zero := &OptionChainSnapshot{Timestamp: ts}
	if got := zero.TimeToExpiryYears(); got != 0 {
		t.Errorf("zero expiry = %.6f, want 0", got)
	}
}
