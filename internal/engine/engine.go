// Package engine orchestrates the per-tick analysis pipeline over a
// stream of option chain snapshots.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/analysis/bias"
	"options-analyzer/internal/analysis/expiry"
	"options-analyzer/internal/analysis/greeks"
	"options-analyzer/internal/analysis/reversal"
	"options-analyzer/internal/analysis/signals"
	"options-analyzer/internal/analysis/zones"
	"options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/models"
)

// Result flags attached to a TickResult.
const (
	FlagFirstTick   = "first_tick"
	FlagCadenceGap  = "cadence_gap"
	FlagPartialBias = "partial_bias"
)

// Config holds the engine construction parameters.
type Config struct {
	RiskFreeRate float64
	ATMWindow    float64

	BiasWeights    bias.Weights
	BiasThresholds bias.Thresholds

	Zones    zones.Config
	Reversal reversal.Config
	Signals  signals.Config

	// HistorySize bounds the snapshot/bias ring buffer.
	HistorySize int
	// MaxTickGap is the inter-snapshot gap beyond which continuity is
	// abandoned and stateful components reset.
	MaxTickGap time.Duration

	ExpiryCutoffHour   int
	ExpiryCutoffMinute int
	Location           *time.Location
}

// DefaultConfig returns the production engine parameters.
func DefaultConfig() Config {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	return Config{
		RiskFreeRate:       0.06,
		ATMWindow:          100,
		BiasWeights:        bias.DefaultWeights(),
		BiasThresholds:     bias.DefaultThresholds(),
		Zones:              zones.DefaultConfig(),
		Reversal:           reversal.DefaultConfig(),
		Signals:            signals.DefaultConfig(),
		HistorySize:        64,
		MaxTickGap:         10 * time.Minute,
		ExpiryCutoffHour:   15,
		ExpiryCutoffMinute: 0,
		Location:           loc,
	}
}

// Validate fails fast on values that would corrupt the pipeline.
func (c *Config) Validate() error {
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return errors.NewConfigurationError("risk_free_rate", c.RiskFreeRate, "must be in [0, 1]")
	}
	if c.ATMWindow <= 0 {
		return errors.NewConfigurationError("atm_window", c.ATMWindow, "must be positive")
	}
	if c.BiasThresholds.Strong < c.BiasThresholds.Normal {
		return errors.NewConfigurationError("bias_thresholds", c.BiasThresholds, "strong must be >= normal")
	}
	if c.Zones.OIRatio <= 1 {
		return errors.NewConfigurationError("zones.oi_ratio", c.Zones.OIRatio, "must exceed 1")
	}
	if c.Zones.ConfirmTicks < 1 || c.Zones.DecayTicks < 1 {
		return errors.NewConfigurationError("zones.ticks", c.Zones, "confirm and decay ticks must be >= 1")
	}
	if c.Reversal.MinConsecutive < 1 {
		return errors.NewConfigurationError("reversal.min_consecutive", c.Reversal.MinConsecutive, "must be >= 1")
	}
	if c.Signals.StopLossFraction <= 0 || c.Signals.StopLossFraction >= 1 {
		return errors.NewConfigurationError("signals.stop_loss_fraction", c.Signals.StopLossFraction, "must be in (0, 1)")
	}
	if c.HistorySize < 2 {
		return errors.NewConfigurationError("history_size", c.HistorySize, "must be >= 2")
	}
	if c.MaxTickGap <= 0 {
		return errors.NewConfigurationError("max_tick_gap", c.MaxTickGap, "must be positive")
	}
	if c.Location == nil {
		return errors.NewConfigurationError("location", nil, "timezone is required")
	}
	return nil
}

// TickResult is the full output of one processed snapshot.
type TickResult struct {
	Symbol    string
	Timestamp time.Time
	SpotPrice float64
	ATMStrike float64
	Mode      expiry.Mode
	Bias      analysis.BiasScore
	Zones     []analysis.SRZone
	Signals   []analysis.Signal
	Partial   bool
	Flags     []string
}

// HistoryEntry pairs a processed snapshot with its bias score.
type HistoryEntry struct {
	Snapshot *models.OptionChainSnapshot
	Bias     analysis.BiasScore
}

// Engine runs the analysis pipeline. It is single-threaded: callers
// must serialize ProcessSnapshot, which the poller loop does naturally.
type Engine struct {
	cfg Config
	log zerolog.Logger

	calc      *greeks.Calculator
	scorer    *bias.Scorer
	zones     *zones.Detector
	reversal  *reversal.Detector
	mode      *expiry.Controller
	generator *signals.Generator

	history []HistoryEntry
	exp     bool
}

// New constructs an engine, failing fast on bad configuration.
func New(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		log:       logging.WithComponent(log, "engine"),
		calc:      greeks.NewCalculator(cfg.RiskFreeRate),
		scorer:    bias.NewScorer(cfg.BiasWeights, cfg.BiasThresholds, cfg.ATMWindow),
		zones:     zones.NewDetector(cfg.Zones),
		reversal:  reversal.NewDetector(cfg.Reversal),
		mode:      expiry.NewController(cfg.ExpiryCutoffHour, cfg.ExpiryCutoffMinute, cfg.Location),
		generator: signals.NewGenerator(cfg.Signals),
	}, nil
}

// ProcessSnapshot runs one snapshot through the full pipeline and
// returns the tick result. Snapshots must arrive in timestamp order.
func (e *Engine) ProcessSnapshot(ctx context.Context, snap *models.OptionChainSnapshot) (*TickResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if len(e.history) > 0 && !snap.Timestamp.After(e.history[len(e.history)-1].Snapshot.Timestamp) {
		return nil, errors.ErrStaleSnapshot
	}

	previous, flags := e.continuity(snap)

	mode := e.mode.ModeFor(snap)
	e.applyMode(mode)

	e.calc.Annotate(snap)

	score := e.scorer.Score(snap, previousSnapshot(previous))
	if score.Partial {
		flags = appendUnique(flags, FlagPartialBias)
	}

	zoneList := e.zones.Update(snap)
	alerts := e.reversal.Update(snap, previousSnapshot(previous))

	sigs := e.generator.Generate(signals.Input{
		Current:     snap,
		Previous:    previousSnapshot(previous),
		Bias:        score,
		Zones:       e.zones,
		Mode:        mode,
		AfterCutoff: e.mode.AfterCutoff(snap.Timestamp),
		Reversals:   alerts,
	})

	e.push(snap, score)

	result := &TickResult{
		Symbol:    snap.Symbol,
		Timestamp: snap.Timestamp,
		SpotPrice: snap.SpotPrice,
		ATMStrike: snap.ATMStrike(),
		Mode:      mode,
		Bias:      score,
		Zones:     zoneList,
		Signals:   sigs,
		Partial:   score.Partial,
		Flags:     flags,
	}

	e.log.Debug().
		Float64("spot", snap.SpotPrice).
		Float64("bias", score.Total).
		Str("verdict", string(score.Classification)).
		Str("mode", string(mode)).
		Int("zones", len(zoneList)).
		Int("signals", len(sigs)).
		Strs("flags", flags).
		Msg("Snapshot processed")

	return result, nil
}

// continuity decides whether the previous tick can anchor deltas. A
// first tick or an oversized gap resets all stateful components.
func (e *Engine) continuity(snap *models.OptionChainSnapshot) (*HistoryEntry, []string) {
	if len(e.history) == 0 {
		return nil, []string{FlagFirstTick}
	}
	last := &e.history[len(e.history)-1]
	gap := snap.Timestamp.Sub(last.Snapshot.Timestamp)
	if gap > e.cfg.MaxTickGap {
		e.log.Warn().Dur("gap", gap).Msg("Tick gap exceeds continuity window, resetting state")
		e.resetState()
		return nil, []string{FlagCadenceGap}
	}
	return last, nil
}

func (e *Engine) resetState() {
	e.history = nil
	e.zones.Reset()
	e.reversal.Reset()
	e.generator.Reset()
}

// applyMode switches the stateful components between the regular and
// expiry-day profiles.
func (e *Engine) applyMode(mode expiry.Mode) {
	on := mode == expiry.ModeExpiryDay
	if on == e.exp {
		return
	}
	e.exp = on
	e.zones.SetExpiryMode(on)
	if on {
		e.scorer.SetWeights(bias.ExpiryWeights())
		e.log.Info().Msg("Expiry day profile active")
	} else {
		e.scorer.SetWeights(e.cfg.BiasWeights)
	}
}

func (e *Engine) push(snap *models.OptionChainSnapshot, score analysis.BiasScore) {
	e.history = append(e.history, HistoryEntry{Snapshot: snap, Bias: score})
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[1:]
	}
}

// History returns the retained (snapshot, bias) pairs, oldest first.
func (e *Engine) History() []HistoryEntry {
	return e.history
}

// Mode returns the engine's current analysis mode.
func (e *Engine) Mode() expiry.Mode {
	return e.mode.Mode()
}

func previousSnapshot(h *HistoryEntry) *models.OptionChainSnapshot {
	if h == nil {
		return nil
	}
	return h.Snapshot
}

func appendUnique(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
