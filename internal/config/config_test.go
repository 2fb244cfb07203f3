package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// loadDefaults primes a fresh config dir: the first Load writes the
// template and errors, the second succeeds with defaults.
func loadDefaults(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("expected template-created error on a fresh directory")
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after template creation: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	if cfg.Analysis.Symbol != "NIFTY" {
		t.Errorf("symbol = %s, want NIFTY", cfg.Analysis.Symbol)
	}
	if cfg.Analysis.Weights.ChgOI != 2.0 {
		t.Errorf("chg_oi weight = %.1f, want 2.0", cfg.Analysis.Weights.ChgOI)
	}
	if cfg.Feed.Source != "nse" {
		t.Errorf("feed source = %s, want nse", cfg.Feed.Source)
	}
	if cfg.Feed.RefreshInterval != 120*time.Second {
		t.Errorf("refresh interval = %s, want 2m", cfg.Feed.RefreshInterval)
	}
	if cfg.Zones.ConfirmTicks != 3 {
		t.Errorf("confirm ticks = %d, want 3", cfg.Zones.ConfirmTicks)
	}
	if cfg.Signals.RequireStrong {
		t.Error("require_strong should default off")
	}
	if cfg.Expiry.CutoffHour != 15 || cfg.Expiry.CutoffMinute != 0 {
		t.Errorf("cutoff = %02d:%02d, want 15:00", cfg.Expiry.CutoffHour, cfg.Expiry.CutoffMinute)
	}
	if cfg.Market.Timezone != "Asia/Kolkata" {
		t.Errorf("timezone = %s, want Asia/Kolkata", cfg.Market.Timezone)
	}
	if cfg.Store.Path == "" {
		t.Error("store path should fall back to the config-dir default")
	}
	if !cfg.Notifications.Terminal {
		t.Error("terminal notifications should default on")
	}
}

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error announcing the created template")
	}

	raw, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("template not written: %v", err)
	}
	for _, section := range []string{"[analysis]", "[feed]", "[zones]", "[signals]", "[store]"} {
		if !strings.Contains(string(raw), section) {
			t.Errorf("template missing %s section", section)
		}
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[analysis]
symbol = "BANKNIFTY"
atm_window = 200.0

[feed]
source = "file"
replay_path = "/tmp/replay"
refresh_interval = "45s"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.Symbol != "BANKNIFTY" {
		t.Errorf("symbol = %s, want BANKNIFTY", cfg.Analysis.Symbol)
	}
	if cfg.Analysis.ATMWindow != 200 {
		t.Errorf("atm_window = %.0f, want 200", cfg.Analysis.ATMWindow)
	}
	if cfg.Feed.RefreshInterval != 45*time.Second {
		t.Errorf("refresh interval = %s, want 45s", cfg.Feed.RefreshInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Analysis.Weights.Gamma != 1.0 {
		t.Errorf("gamma weight = %.1f, want default 1.0", cfg.Analysis.Weights.Gamma)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANALYZER_SYMBOL", "FINNIFTY")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-123")

	cfg := loadDefaults(t)
	if cfg.Analysis.Symbol != "FINNIFTY" {
		t.Errorf("symbol = %s, want env override FINNIFTY", cfg.Analysis.Symbol)
	}
	if cfg.Notifications.Telegram.BotToken != "tok-123" {
		t.Errorf("bot token not overridden: %s", cfg.Notifications.Telegram.BotToken)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty symbol", func(c *Config) { c.Analysis.Symbol = "" }},
		{"negative risk free rate", func(c *Config) { c.Analysis.RiskFreeRate = -1 }},
		{"inverted thresholds", func(c *Config) { c.Analysis.StrongThreshold = 1; c.Analysis.NormalThreshold = 4 }},
		{"unknown feed source", func(c *Config) { c.Feed.Source = "broker" }},
		{"file source without path", func(c *Config) { c.Feed.Source = "file"; c.Feed.ReplayPath = "" }},
		{"refresh below floor", func(c *Config) { c.Feed.RefreshInterval = 5 * time.Second }},
		{"oi ratio at parity", func(c *Config) { c.Zones.OIRatio = 1 }},
		{"stop loss of one", func(c *Config) { c.Signals.StopLossFraction = 1 }},
		{"bad cutoff hour", func(c *Config) { c.Expiry.CutoffHour = 25 }},
		{"bad timezone", func(c *Config) { c.Market.Timezone = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		cfg := loadDefaults(t)
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLocation(t *testing.T) {
	cfg := loadDefaults(t)
	if got := cfg.Location().String(); got != "Asia/Kolkata" {
		t.Errorf("location = %s, want Asia/Kolkata", got)
	}
}
