package cli

import (
	"time"

	"options-analyzer/internal/analysis/bias"
	"options-analyzer/internal/analysis/reversal"
	"options-analyzer/internal/analysis/signals"
	"options-analyzer/internal/analysis/zones"
	"options-analyzer/internal/config"
	"options-analyzer/internal/engine"
	"options-analyzer/internal/feed"
	"options-analyzer/pkg/utils"
)

// buildEngineConfig maps the file configuration onto engine settings.
func buildEngineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()

	ec.RiskFreeRate = cfg.Analysis.RiskFreeRate
	ec.ATMWindow = cfg.Analysis.ATMWindow
	ec.HistorySize = cfg.Analysis.HistorySize
	ec.MaxTickGap = cfg.Feed.MaxTickGap
	ec.ExpiryCutoffHour = cfg.Expiry.CutoffHour
	ec.ExpiryCutoffMinute = cfg.Expiry.CutoffMinute
	ec.Location = cfg.Location()

	ec.BiasWeights = bias.Weights{
		ChgOI:       cfg.Analysis.Weights.ChgOI,
		Volume:      cfg.Analysis.Weights.Volume,
		Gamma:       cfg.Analysis.Weights.Gamma,
		AskQty:      cfg.Analysis.Weights.AskQty,
		BidQty:      cfg.Analysis.Weights.BidQty,
		IV:          cfg.Analysis.Weights.IV,
		DeltaVolume: cfg.Analysis.Weights.DeltaVolume,
	}
	ec.BiasThresholds = bias.Thresholds{
		Strong: cfg.Analysis.StrongThreshold,
		Normal: cfg.Analysis.NormalThreshold,
	}

	ec.Zones = zones.Config{
		OIRatio:         cfg.Zones.OIRatio,
		ProminenceSigma: cfg.Zones.ProminenceSigma,
		MergeTolerance:  cfg.Zones.MergeTolerance,
		ConfirmTicks:    cfg.Zones.ConfirmTicks,
		DecayTicks:      cfg.Zones.DecayTicks,
	}

	ec.Reversal = reversal.DefaultConfig()
	ec.Reversal.Window = cfg.Reversal.Window
	ec.Reversal.MinConsecutive = cfg.Reversal.MinConsecutive
	ec.Reversal.MinScore = cfg.Reversal.MinScore
	ec.Reversal.Cooldown = cfg.Reversal.Cooldown

	ec.Signals = signals.DefaultConfig()
	ec.Signals.ZoneTolerance = cfg.Signals.ZoneTolerance
	ec.Signals.TargetFactor = cfg.Signals.TargetFactor
	ec.Signals.StopLossFraction = cfg.Signals.StopLossFraction
	ec.Signals.RequireStrong = cfg.Signals.RequireStrong
	ec.Signals.DedupCooldown = cfg.Signals.DedupCooldown
	ec.Signals.SpikeSigma = cfg.Signals.SpikeSigma
	ec.Signals.ExpiryEntryThreshold = cfg.Signals.ExpiryEntryThreshold

	return ec
}

// buildFeed constructs the configured chain source. replayPath overrides
// the configured source when non-empty.
func (app *App) buildFeed(replayPath string) (feed.ChainSource, error) {
	loc := app.Config.Location()

	if replayPath != "" || app.Config.Feed.Source == "file" {
		dir := replayPath
		if dir == "" {
			dir = app.Config.Feed.ReplayPath
		}
		return feed.NewFileSource(app.Config.Analysis.Symbol, dir, 0,
			app.Config.Feed.RefreshInterval, loc, app.Logger)
	}

	return feed.NewNSESource(app.Config.Analysis.Symbol,
		app.Config.Feed.RequestTimeout, loc, app.Logger)
}

// buildSession constructs the market session window from config.
func (app *App) buildSession() utils.Session {
	s := utils.DefaultSession()
	s.Loc = app.Config.Location()
	if app.Config.Market.OpenHour != 0 || app.Config.Market.OpenMin != 0 {
		s.OpenHour = app.Config.Market.OpenHour
		s.OpenMin = app.Config.Market.OpenMin
	}
	if app.Config.Market.CloseHour != 0 || app.Config.Market.CloseMin != 0 {
		s.CloseHour = app.Config.Market.CloseHour
		s.CloseMin = app.Config.Market.CloseMin
	}
	return s
}

// parseDay parses a YYYY-MM-DD date in the market timezone, defaulting
// to today.
func (app *App) parseDay(s string) (time.Time, error) {
	loc := app.Config.Location()
	if s == "" {
		return time.Now().In(loc), nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}
