package reversal

import (
	"testing"
	"time"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/models"
)

func testConfig() Config {
	return Config{
		Window:         10,
		MinConsecutive: 2,
		MinScore:       2,
		Cooldown:       15 * time.Minute,
		ATMWindow:      100,
	}
}

// bearishTick builds the i-th snapshot of a rising tape with call
// writers covering and put interest building at the 20000 strike, the
// classic exhaustion setup.
func bearishTick(i int, base time.Time) *models.OptionChainSnapshot {
	callOI := int64(100000 - i*10000)
	putOI := int64(100000 + i*10000)
	return &models.OptionChainSnapshot{
		Symbol:    "NIFTY",
		Timestamp: base.Add(time.Duration(i) * 2 * time.Minute),
		SpotPrice: 20000 + float64(i)*10,
		Strikes: []models.StrikeRow{
			{
				StrikePrice: 20000,
				Call:        &models.OptionQuote{LTP: 120, OI: callOI, IV: 14, BidQty: 100, AskQty: 100},
				Put:         &models.OptionQuote{LTP: 110, OI: putOI, IV: 15, BidQty: 100, AskQty: 100},
			},
		},
	}
}

// flatTick holds positioning steady so no divergence scores.
func flatTick(i int, base time.Time, prev *models.OptionChainSnapshot) *models.OptionChainSnapshot {
	snap := bearishTick(i, base)
	snap.Strikes[0].Call.OI = prev.Strikes[0].Call.OI
	snap.Strikes[0].Put.OI = prev.Strikes[0].Put.OI
	return snap
}

func TestAlertFiresAtStreakThreshold(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	t0 := bearishTick(0, base)
	t1 := bearishTick(1, base)
	t2 := bearishTick(2, base)

	if alerts := d.Update(t1, t0); len(alerts) != 0 {
		t.Fatalf("streak of 1 should not alert: %+v", alerts)
	}
	alerts := d.Update(t2, t1)
	if len(alerts) != 1 {
		t.Fatalf("expected alert at streak 2, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Direction != analysis.DirectionDown {
		t.Errorf("expected DOWN direction against a rising tape, got %s", a.Direction)
	}
	if a.Strike != 20000 {
		t.Errorf("expected strike 20000, got %.0f", a.Strike)
	}
	if a.Streak != 2 {
		t.Errorf("expected streak 2, got %d", a.Streak)
	}
	if a.Score < 2 {
		t.Errorf("expected score >= 2, got %.1f", a.Score)
	}
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	prev := bearishTick(0, base)
	var fired int
	for i := 1; i <= 6; i++ {
		curr := bearishTick(i, base)
		fired += len(d.Update(curr, prev))
		prev = curr
	}
	// Streak keeps qualifying every tick but only the first alert within
	// the cooldown window goes out.
	if fired != 1 {
		t.Errorf("expected 1 alert across a 12 minute streak, got %d", fired)
	}

	// Next qualifying tick beyond the cooldown alerts again.
	curr := bearishTick(7, base)
	curr.Timestamp = base.Add(20 * time.Minute)
	if alerts := d.Update(curr, prev); len(alerts) != 1 {
		t.Errorf("expected a fresh alert after the cooldown, got %d", len(alerts))
	}
}

func TestStreakBreaksOnQuietTick(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	t0 := bearishTick(0, base)
	t1 := bearishTick(1, base)
	quiet := flatTick(2, base, t1)
	t3 := bearishTick(3, base)
	t3.Strikes[0].Call.OI = quiet.Strikes[0].Call.OI - 10000
	t3.Strikes[0].Put.OI = quiet.Strikes[0].Put.OI + 10000

	d.Update(t1, t0)
	d.Update(quiet, t1)
	if alerts := d.Update(t3, quiet); len(alerts) != 0 {
		t.Errorf("expected streak reset by the quiet tick, got %+v", alerts)
	}
}

func TestNilPreviousClearsStreaks(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	t0 := bearishTick(0, base)
	t1 := bearishTick(1, base)
	t2 := bearishTick(2, base)
	t3 := bearishTick(3, base)

	d.Update(t1, t0)
	if alerts := d.Update(t2, nil); len(alerts) != 0 {
		t.Fatalf("nil previous must not alert: %+v", alerts)
	}
	if alerts := d.Update(t3, t2); len(alerts) != 0 {
		t.Errorf("expected streak restarted after the gap, got %+v", alerts)
	}
}

func TestNoAlertWhenPositioningAgreesWithTape(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	// Same positioning shift but on a falling tape: call unwind with a
	// falling spot is confirmation, not divergence.
	t0 := bearishTick(0, base)
	t1 := bearishTick(1, base)
	t1.SpotPrice = t0.SpotPrice - 10
	t2 := bearishTick(2, base)
	t2.SpotPrice = t1.SpotPrice - 10

	d.Update(t1, t0)
	if alerts := d.Update(t2, t1); len(alerts) != 0 {
		t.Errorf("expected no alert on a confirming tape, got %+v", alerts)
	}
}

func TestReset(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	t0 := bearishTick(0, base)
	t1 := bearishTick(1, base)
	t2 := bearishTick(2, base)

	d.Update(t1, t0)
	d.Reset()
	if alerts := d.Update(t2, t1); len(alerts) != 0 {
		t.Errorf("expected streak cleared by reset, got %+v", alerts)
	}
}
