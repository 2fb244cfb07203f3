package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/engine"
	"options-analyzer/internal/models"
)

// Property: for any valid tick result, saving it to the database and then
// retrieving it should produce equivalent tick and signal data.
func TestProperty_TickRoundTripConsistency(t *testing.T) {
	dbPath := "test_ticks_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	verdicts := []analysis.Classification{
		analysis.StrongBearish, analysis.Bearish, analysis.Neutral,
		analysis.Bullish, analysis.StrongBullish,
	}

	spotGen := gen.Float64Range(15000.0, 30000.0)
	biasGen := gen.Float64Range(-8.0, 8.0)
	signalCountGen := gen.IntRange(0, 3)

	var seq int64

	properties.Property("Tick round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(spot, biasTotal float64, verdictIdx, signalCount int) bool {
			ctx := context.Background()
			seq++

			symbol := fmt.Sprintf("NIFTY_%d", seq)
			ts := time.Date(2026, 8, 27, 9, 15, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
			atm := float64(int(spot/50)) * 50

			tick := &engine.TickResult{
				Symbol:    symbol,
				Timestamp: ts,
				SpotPrice: roundToDecimal(spot, 2),
				ATMStrike: atm,
				Mode:      "REGULAR",
				Bias: analysis.BiasScore{
					Total:          roundToDecimal(biasTotal, 2),
					Classification: verdicts[verdictIdx%len(verdicts)],
					Timestamp:      ts,
				},
				Signals: generateTestSignals(symbol, signalCount, atm, ts),
				Flags:   []string{"first_tick"},
			}

			if err := store.SaveTick(ctx, tick); err != nil {
				t.Logf("Failed to save tick: %v", err)
				return false
			}

			ticks, err := store.GetTicks(ctx, TickFilter{Symbol: symbol})
			if err != nil {
				t.Logf("Failed to get ticks: %v", err)
				return false
			}
			if len(ticks) != 1 {
				t.Logf("Tick count mismatch: expected 1, got %d", len(ticks))
				return false
			}

			got := ticks[0]
			if got.Symbol != symbol ||
				got.Timestamp.Unix() != ts.Unix() ||
				!floatEqual(got.SpotPrice, tick.SpotPrice, 0.01) ||
				!floatEqual(got.ATMStrike, tick.ATMStrike, 0.01) ||
				!floatEqual(got.BiasTotal, tick.Bias.Total, 0.01) ||
				got.Verdict != string(tick.Bias.Classification) ||
				got.Signals != signalCount {
				t.Logf("Tick mismatch: saved=%+v, retrieved=%+v", tick, got)
				return false
			}

			signals, err := store.GetSignals(ctx, SignalFilter{Symbol: symbol})
			if err != nil {
				t.Logf("Failed to get signals: %v", err)
				return false
			}
			if len(signals) != signalCount {
				t.Logf("Signal count mismatch: expected %d, got %d", signalCount, len(signals))
				return false
			}

			for _, rec := range signals {
				if rec.Symbol != symbol || rec.Kind != string(analysis.SignalTradeEntry) {
					t.Logf("Signal mismatch: %+v", rec)
					return false
				}
			}

			return true
		},
		spotGen,
		biasGen,
		gen.IntRange(0, len(verdicts)-1),
		signalCountGen,
	))

	// Ticks with no signals or zones should save without errors
	properties.Property("Empty tick: saving a tick without signals succeeds", prop.ForAll(
		func(spot float64) bool {
			ctx := context.Background()
			seq++

			tick := &engine.TickResult{
				Symbol:    fmt.Sprintf("EMPTY_%d", seq),
				Timestamp: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
				SpotPrice: spot,
				ATMStrike: float64(int(spot/50)) * 50,
				Mode:      "REGULAR",
				Bias:      analysis.BiasScore{Classification: analysis.Neutral},
			}

			return store.SaveTick(ctx, tick) == nil
		},
		spotGen,
	))

	properties.TestingRun(t)
}

// generateTestSignals creates valid trade entry signals for testing.
func generateTestSignals(symbol string, count int, atm float64, ts time.Time) []analysis.Signal {
	signals := make([]analysis.Signal, count)
	for i := 0; i < count; i++ {
		entry := 100.0 + float64(i)*10
		signals[i] = analysis.Signal{
			ID:             fmt.Sprintf("%s-sig-%d", symbol, i),
			Kind:           analysis.SignalTradeEntry,
			Strike:         atm + float64(i)*50,
			Side:           models.CallSide,
			EntryPrice:     entry,
			TargetPrice:    roundToDecimal(entry*1.1, 2),
			StopLossPrice:  roundToDecimal(entry*0.8, 2),
			BiasTotal:      4.0,
			Classification: analysis.StrongBullish,
			Timestamp:      ts,
			Reason:         "test signal",
		}
	}
	return signals
}

// roundToDecimal rounds a float to the specified decimal places.
func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

// floatEqual compares two floats with a tolerance.
func floatEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
