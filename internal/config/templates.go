package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Analyzer Configuration

[analysis]
# Index symbol to analyze
symbol = "NIFTY"
# Annualized risk-free rate used for Greeks
risk_free_rate = 0.06
# Width in index points around the ATM strike scored for bias
atm_window = 100.0
# Classification thresholds for the total bias score
strong_threshold = 4.0
normal_threshold = 2.0
# Snapshots of history retained in memory
history_size = 64

[analysis.weights]
chg_oi = 2.0
volume = 1.0
gamma = 1.0
ask_qty = 1.0
bid_qty = 1.0
iv = 1.0
delta_volume = 1.0

[feed]
# Data source: "nse" (live) or "file" (replay)
source = "nse"
# Polling cadence; the NSE endpoint rate limits below 30s
refresh_interval = "120s"
request_timeout = "15s"
# Gap beyond which tick continuity is abandoned
max_tick_gap = "10m"
# Directory of snapshot JSON files for the file source
replay_path = ""

[zones]
# One side's OI must exceed this multiple of the other
oi_ratio = 1.12
# Standard deviations above mean chain OI required
prominence_sigma = 1.0
# Candidates within this many points merge into one zone
merge_tolerance = 20.0
confirm_ticks = 3
decay_ticks = 5

[reversal]
window = 10
min_consecutive = 2
min_score = 2.0
cooldown = "15m"

[signals]
# Spot must be within this many points of a zone for an entry
zone_tolerance = 20.0
# Scales strike-to-opposite-zone distance into the premium target
target_factor = 0.5
stop_loss_fraction = 0.20
# Require StrongBullish/StrongBearish instead of any directional bias
require_strong = false
dedup_cooldown = "15m"
spike_sigma = 3.0
expiry_entry_threshold = 1.5

[expiry]
# Local time after which expiry day stops taking regular entries
cutoff_hour = 15
cutoff_minute = 0

[market]
timezone = "Asia/Kolkata"
open_hour = 9
open_min = 0
close_hour = 18
close_min = 40

[store]
enabled = true
# SQLite database and CSV export locations; defaults live under the
# config directory when left unset.
# path = "/path/to/analyzer.db"
# export_dir = "/path/to/exports"

[ui]
color_enabled = true
date_format = "02-Jan-2006"
time_format = "15:04:05"

[notifications]
enabled = false
# Notification level: all, signals_only, errors_only
level = "all"
# Print notifications to the terminal with a bell on signals
terminal = true

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}
