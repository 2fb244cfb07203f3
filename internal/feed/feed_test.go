package feed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	errs "options-analyzer/internal/errors"
)

func testPayload() *chainPayload {
	var p chainPayload
	p.Records.ExpiryDates = []string{"03-Sep-2026", "10-Sep-2026", "29-Sep-2026"}
	p.Records.UnderlyingValue = 20123.45
	p.Records.Data = []chainRecord{
		{
			StrikePrice: 20200,
			ExpiryDate:  "03-Sep-2026",
			CE:          &sidePayload{OpenInterest: 250000, ChangeInOpenInterest: 12000, TotalTradedVolume: 90000, ImpliedVolatility: 13.4, LastPrice: 55.2, BidQty: 750, BidPrice: 55, AskQty: 600, AskPrice: 55.5},
			PE:          &sidePayload{OpenInterest: 110000, ChangeInOpenInterest: -4000, TotalTradedVolume: 70000, ImpliedVolatility: 14.8, LastPrice: 140.1, BidQty: 500, BidPrice: 139.9, AskQty: 450, AskPrice: 140.4},
		},
		{
			StrikePrice: 20100,
			ExpiryDate:  "03-Sep-2026",
			CE:          &sidePayload{OpenInterest: 180000, LastPrice: 98.5, BidQty: 400, BidPrice: 98.3, AskQty: 350, AskPrice: 98.8, ImpliedVolatility: 13.9},
		},
		{
			// Next-week strike must be filtered out.
			StrikePrice: 20000,
			ExpiryDate:  "10-Sep-2026",
			CE:          &sidePayload{OpenInterest: 90000, LastPrice: 150},
		},
	}
	return &p
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	snap, err := buildSnapshot("NIFTY", testPayload(), 20050, now, time.UTC)
	if err != nil {
		t.Fatalf("buildSnapshot: %v", err)
	}

	if snap.SpotPrice != 20123.45 {
		t.Errorf("spot = %.2f, want 20123.45", snap.SpotPrice)
	}
	if snap.PrevClose != 20050 {
		t.Errorf("prev close = %.2f, want 20050", snap.PrevClose)
	}
	if snap.DaysToExpiry != 2 {
		t.Errorf("days to expiry = %d, want 2", snap.DaysToExpiry)
	}
	if len(snap.Strikes) != 2 {
		t.Fatalf("strikes = %d, want 2 (next-week row filtered)", len(snap.Strikes))
	}
	if snap.Strikes[0].StrikePrice != 20100 || snap.Strikes[1].StrikePrice != 20200 {
		t.Errorf("strikes not ascending: %.0f, %.0f", snap.Strikes[0].StrikePrice, snap.Strikes[1].StrikePrice)
	}

	// One-sided row keeps a nil put.
	if snap.Strikes[0].Put != nil {
		t.Error("expected nil put on the one-sided row")
	}

	ce := snap.Strikes[1].Call
	if ce.LTP != 55.2 || ce.OI != 250000 || ce.OIChange != 12000 || ce.IV != 13.4 {
		t.Errorf("call quote mapped wrong: %+v", ce)
	}
	if ce.BidQty != 750 || ce.AskPrice != 55.5 {
		t.Errorf("call book mapped wrong: %+v", ce)
	}
}

func TestBuildSnapshotNoExpiries(t *testing.T) {
	var p chainPayload
	p.Records.UnderlyingValue = 20000

	if _, err := buildSnapshot("NIFTY", &p, 0, time.Now(), time.UTC); err == nil {
		t.Error("expected error for payload without expiry dates")
	}
}

func TestNearestExpiry(t *testing.T) {
	dates := []string{"10-Sep-2026", "03-Sep-2026", "29-Sep-2026"}

	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), "03-Sep-2026"},
		// Expiry day itself still tracks the expiring series.
		{time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC), "03-Sep-2026"},
		{time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC), "10-Sep-2026"},
		// All listed expiries past: fall back to the latest.
		{time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), "29-Sep-2026"},
	}
	for _, tc := range cases {
		got, err := nearestExpiry(dates, tc.now, time.UTC)
		if err != nil {
			t.Fatalf("nearestExpiry(%s): %v", tc.now.Format("02-Jan"), err)
		}
		if got.Format(nseExpiryFormat) != tc.want {
			t.Errorf("nearestExpiry at %s = %s, want %s", tc.now.Format("02-Jan"), got.Format(nseExpiryFormat), tc.want)
		}
	}
}

func TestNearestExpiryBadDate(t *testing.T) {
	if _, err := nearestExpiry([]string{"2026-09-03"}, time.Now(), time.UTC); err == nil {
		t.Error("expected parse error for ISO-formatted date")
	}
}

func TestFileSourceReplay(t *testing.T) {
	dir := t.TempDir()
	for i, spot := range []float64{20100, 20150, 20200} {
		p := testPayload()
		p.Records.UnderlyingValue = spot
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		name := filepath.Join(dir, time.Date(2026, 9, 1, 10, 2*i, 0, 0, time.UTC).Format("150405")+".json")
		if err := os.WriteFile(name, raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-JSON clutter is ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewFileSource("NIFTY", dir, 20050, 2*time.Minute, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	if src.Remaining() != 3 {
		t.Fatalf("remaining = %d, want 3", src.Remaining())
	}

	ctx := context.Background()
	var prev time.Time
	for i, wantSpot := range []float64{20100, 20150, 20200} {
		snap, err := src.Fetch(ctx)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if snap.SpotPrice != wantSpot {
			t.Errorf("fetch %d: spot = %.0f, want %.0f", i, snap.SpotPrice, wantSpot)
		}
		if i > 0 && snap.Timestamp.Sub(prev) != 2*time.Minute {
			t.Errorf("fetch %d: tick spacing = %s, want 2m", i, snap.Timestamp.Sub(prev))
		}
		prev = snap.Timestamp
	}

	if _, err := src.Fetch(ctx); !errs.Is(err, errs.ErrDataNotFound) {
		t.Errorf("exhausted source error = %v, want ErrDataNotFound", err)
	}
}

func TestFileSourceEmptyDir(t *testing.T) {
	if _, err := NewFileSource("NIFTY", t.TempDir(), 0, time.Minute, time.UTC, zerolog.Nop()); err == nil {
		t.Error("expected error for directory without snapshots")
	}
}
