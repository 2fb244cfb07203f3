// Package config provides configuration management for the analyzer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Analysis      AnalysisConfig     `mapstructure:"analysis"`
	Feed          FeedConfig         `mapstructure:"feed"`
	Zones         ZonesConfig        `mapstructure:"zones"`
	Reversal      ReversalConfig     `mapstructure:"reversal"`
	Signals       SignalsConfig      `mapstructure:"signals"`
	Expiry        ExpiryConfig       `mapstructure:"expiry"`
	Market        MarketConfig       `mapstructure:"market"`
	Store         StoreConfig        `mapstructure:"store"`
	UI            UIConfig           `mapstructure:"ui"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// AnalysisConfig holds the bias engine and Greeks parameters.
type AnalysisConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate"`
	ATMWindow       float64 `mapstructure:"atm_window"`
	StrongThreshold float64 `mapstructure:"strong_threshold"`
	NormalThreshold float64 `mapstructure:"normal_threshold"`
	HistorySize     int     `mapstructure:"history_size"`

	Weights WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig holds the per-factor bias weights.
type WeightsConfig struct {
	ChgOI       float64 `mapstructure:"chg_oi"`
	Volume      float64 `mapstructure:"volume"`
	Gamma       float64 `mapstructure:"gamma"`
	AskQty      float64 `mapstructure:"ask_qty"`
	BidQty      float64 `mapstructure:"bid_qty"`
	IV          float64 `mapstructure:"iv"`
	DeltaVolume float64 `mapstructure:"delta_volume"`
}

// FeedConfig holds the data source configuration.
type FeedConfig struct {
	Source          string        `mapstructure:"source"` // "nse", "file"
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ReplayPath      string        `mapstructure:"replay_path"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxTickGap      time.Duration `mapstructure:"max_tick_gap"`
}

// ZonesConfig holds S/R zone detection parameters.
type ZonesConfig struct {
	OIRatio         float64 `mapstructure:"oi_ratio"`
	ProminenceSigma float64 `mapstructure:"prominence_sigma"`
	MergeTolerance  float64 `mapstructure:"merge_tolerance"`
	ConfirmTicks    int     `mapstructure:"confirm_ticks"`
	DecayTicks      int     `mapstructure:"decay_ticks"`
}

// ReversalConfig holds reversal detection parameters.
type ReversalConfig struct {
	Window         int           `mapstructure:"window"`
	MinConsecutive int           `mapstructure:"min_consecutive"`
	MinScore       float64       `mapstructure:"min_score"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// SignalsConfig holds signal generation parameters.
type SignalsConfig struct {
	ZoneTolerance        float64       `mapstructure:"zone_tolerance"`
	TargetFactor         float64       `mapstructure:"target_factor"`
	StopLossFraction     float64       `mapstructure:"stop_loss_fraction"`
	RequireStrong        bool          `mapstructure:"require_strong"`
	DedupCooldown        time.Duration `mapstructure:"dedup_cooldown"`
	SpikeSigma           float64       `mapstructure:"spike_sigma"`
	ExpiryEntryThreshold float64       `mapstructure:"expiry_entry_threshold"`
}

// ExpiryConfig holds expiry-day parameters.
type ExpiryConfig struct {
	CutoffHour   int `mapstructure:"cutoff_hour"`
	CutoffMinute int `mapstructure:"cutoff_minute"`
}

// MarketConfig holds session window configuration.
type MarketConfig struct {
	Timezone  string `mapstructure:"timezone"`
	OpenHour  int    `mapstructure:"open_hour"`
	OpenMin   int    `mapstructure:"open_min"`
	CloseHour int    `mapstructure:"close_hour"`
	CloseMin  int    `mapstructure:"close_min"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	ExportDir string `mapstructure:"export_dir"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, signals_only, errors_only
	Terminal bool           `mapstructure:"terminal"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-analyzer"
	}
	return filepath.Join(home, ".config", "options-analyzer")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.symbol", "NIFTY")
	v.SetDefault("analysis.risk_free_rate", 0.06)
	v.SetDefault("analysis.atm_window", 100.0)
	v.SetDefault("analysis.strong_threshold", 4.0)
	v.SetDefault("analysis.normal_threshold", 2.0)
	v.SetDefault("analysis.history_size", 64)
	v.SetDefault("analysis.weights.chg_oi", 2.0)
	v.SetDefault("analysis.weights.volume", 1.0)
	v.SetDefault("analysis.weights.gamma", 1.0)
	v.SetDefault("analysis.weights.ask_qty", 1.0)
	v.SetDefault("analysis.weights.bid_qty", 1.0)
	v.SetDefault("analysis.weights.iv", 1.0)
	v.SetDefault("analysis.weights.delta_volume", 1.0)

	v.SetDefault("feed.source", "nse")
	v.SetDefault("feed.refresh_interval", "120s")
	v.SetDefault("feed.request_timeout", "15s")
	v.SetDefault("feed.max_tick_gap", "10m")

	v.SetDefault("zones.oi_ratio", 1.12)
	v.SetDefault("zones.prominence_sigma", 1.0)
	v.SetDefault("zones.merge_tolerance", 20.0)
	v.SetDefault("zones.confirm_ticks", 3)
	v.SetDefault("zones.decay_ticks", 5)

	v.SetDefault("reversal.window", 10)
	v.SetDefault("reversal.min_consecutive", 2)
	v.SetDefault("reversal.min_score", 2.0)
	v.SetDefault("reversal.cooldown", "15m")

	v.SetDefault("signals.zone_tolerance", 20.0)
	v.SetDefault("signals.target_factor", 0.5)
	v.SetDefault("signals.stop_loss_fraction", 0.20)
	v.SetDefault("signals.require_strong", false)
	v.SetDefault("signals.dedup_cooldown", "15m")
	v.SetDefault("signals.spike_sigma", 3.0)
	v.SetDefault("signals.expiry_entry_threshold", 1.5)

	v.SetDefault("expiry.cutoff_hour", 15)
	v.SetDefault("expiry.cutoff_minute", 0)

	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.open_hour", 9)
	v.SetDefault("market.open_min", 0)
	v.SetDefault("market.close_hour", 18)
	v.SetDefault("market.close_min", 40)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "analyzer.db"))
	v.SetDefault("store.export_dir", filepath.Join(DefaultConfigDir(), "exports"))

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.terminal", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANALYZER_SYMBOL"); v != "" {
		cfg.Analysis.Symbol = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("ANALYZER_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
}

// MinRefreshInterval is the floor on the polling cadence; the NSE
// endpoint rate limits aggressive clients.
const MinRefreshInterval = 30 * time.Second

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Analysis.Symbol == "" {
		return fmt.Errorf("analysis.symbol is required")
	}
	if c.Analysis.RiskFreeRate < 0 || c.Analysis.RiskFreeRate > 1 {
		return fmt.Errorf("risk_free_rate must be between 0 and 1")
	}
	if c.Analysis.ATMWindow <= 0 {
		return fmt.Errorf("atm_window must be positive")
	}
	if c.Analysis.StrongThreshold < c.Analysis.NormalThreshold {
		return fmt.Errorf("strong_threshold must be >= normal_threshold")
	}
	if c.Feed.Source != "nse" && c.Feed.Source != "file" {
		return fmt.Errorf("invalid feed source: %s (must be 'nse' or 'file')", c.Feed.Source)
	}
	if c.Feed.Source == "file" && c.Feed.ReplayPath == "" {
		return fmt.Errorf("feed.replay_path is required with the file source")
	}
	if c.Feed.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("refresh_interval must be at least %s", MinRefreshInterval)
	}
	if c.Zones.OIRatio <= 1 {
		return fmt.Errorf("zones.oi_ratio must exceed 1")
	}
	if c.Zones.ConfirmTicks < 1 || c.Zones.DecayTicks < 1 {
		return fmt.Errorf("zones confirm_ticks and decay_ticks must be >= 1")
	}
	if c.Signals.StopLossFraction <= 0 || c.Signals.StopLossFraction >= 1 {
		return fmt.Errorf("signals.stop_loss_fraction must be between 0 and 1 exclusive")
	}
	if c.Expiry.CutoffHour < 0 || c.Expiry.CutoffHour > 23 {
		return fmt.Errorf("expiry.cutoff_hour must be a valid hour")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.Market.Timezone, err)
	}
	return nil
}

// Location resolves the configured market timezone. Validate has
// already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
