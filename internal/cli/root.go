// Package cli provides the command-line interface for the options analyzer.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-analyzer/internal/config"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	if cfg.Store.Enabled {
		dataStore, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize store, history commands will be unavailable")
		} else {
			app.Store = dataStore
			logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
		}
	}

	rootCmd := &cobra.Command{
		Use:   "options-analyzer",
		Short: "NIFTY option chain analysis CLI",
		Long: `Options Analyzer is a real-time option chain analysis CLI for NIFTY
index options.

It fetches the option chain from NSE, computes Greeks and a weighted
multi-factor bias score, tracks OI-backed support/resistance zones,
detects reversal divergences and emits trade entry signals. An expiry
day mode switches to premium-flow scoring.

Use 'options-analyzer help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-analyzer)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newSummaryCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Analyzer v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Analysis Configuration")
	output.Printf("  Symbol:           %s\n", cfg.Analysis.Symbol)
	output.Printf("  Risk-Free Rate:   %.2f%%\n", cfg.Analysis.RiskFreeRate*100)
	output.Printf("  ATM Window:       %.0f pts\n", cfg.Analysis.ATMWindow)
	output.Printf("  Strong Threshold: %.1f\n", cfg.Analysis.StrongThreshold)
	output.Printf("  Normal Threshold: %.1f\n", cfg.Analysis.NormalThreshold)
	output.Println()

	output.Bold("Feed Configuration")
	output.Printf("  Source:           %s\n", cfg.Feed.Source)
	output.Printf("  Refresh Interval: %s\n", cfg.Feed.RefreshInterval)
	output.Printf("  Max Tick Gap:     %s\n", cfg.Feed.MaxTickGap)
	output.Println()

	output.Bold("Zones Configuration")
	output.Printf("  OI Dominance:     %.2f\n", cfg.Zones.OIRatio)
	output.Printf("  Merge Tolerance:  %.0f pts\n", cfg.Zones.MergeTolerance)
	output.Printf("  Confirm Ticks:    %d\n", cfg.Zones.ConfirmTicks)
	output.Printf("  Decay Ticks:      %d\n", cfg.Zones.DecayTicks)
	output.Println()

	output.Bold("Store")
	output.Printf("  Enabled:          %v\n", cfg.Store.Enabled)
	output.Printf("  Path:             %s\n", cfg.Store.Path)
	output.Printf("  Export Dir:       %s\n", cfg.Store.ExportDir)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:         %v\n", cfg.Notifications.Telegram.Enabled)

	return nil
}
