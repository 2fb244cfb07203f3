package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/engine"
	errs "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/notify"
	"options-analyzer/internal/poller"
	"options-analyzer/internal/stream"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Continuous analysis loop",
		Long: `Poll the option chain at the configured refresh interval during
market hours, run each snapshot through the analysis engine, and fan
results out to the terminal, store and configured notification channels.

Stops cleanly on Ctrl-C. With --replay the loop reads saved snapshots
and exits when the directory is exhausted.`,
		Example: `  options-analyzer run
  options-analyzer run --interval 2m
  options-analyzer run --replay ./chains --summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			replayPath, _ := cmd.Flags().GetString("replay")
			interval, _ := cmd.Flags().GetDuration("interval")
			quiet, _ := cmd.Flags().GetBool("quiet")
			summary, _ := cmd.Flags().GetBool("summary")

			if interval <= 0 {
				interval = app.Config.Feed.RefreshInterval
			}

			src, err := app.buildFeed(replayPath)
			if err != nil {
				output.Error("Failed to initialize feed: %v", err)
				return err
			}
			defer src.Close()

			eng, err := engine.New(buildEngineConfig(app.Config), app.Logger)
			if err != nil {
				output.Error("Failed to initialize engine: %v", err)
				return err
			}

			bus := stream.NewBus()
			busCtx, busCancel := context.WithCancel(context.Background())
			defer busCancel()
			bus.Start(busCtx)
			defer bus.Stop()

			// Structured log consumer
			bus.RegisterConsumer(stream.ConsumerFunc(func(r *engine.TickResult) {
				logging.LogTick(app.Logger, r.Symbol, r.SpotPrice, r.Bias.Total,
					string(r.Bias.Classification), len(r.Signals))
				for i := range r.Signals {
					s := &r.Signals[i]
					logging.LogSignal(app.Logger, s.ID, string(s.Kind), s.Strike,
						string(s.Side), s.EntryPrice, s.TargetPrice, s.StopLossPrice)
				}
			}))

			// Terminal consumer
			if !quiet {
				bus.RegisterConsumer(stream.ConsumerFunc(func(r *engine.TickResult) {
					renderTickLine(output, r)
				}))
			}

			// Store consumer
			if app.Store != nil {
				bus.RegisterConsumer(stream.ConsumerFunc(func(r *engine.TickResult) {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := app.Store.SaveTick(ctx, r); err != nil {
						app.Logger.Warn().Err(err).Msg("persisting tick failed")
					}
				}))
			}

			// Notification consumer
			var notifier notify.Notifier
			if app.Config.Notifications.Enabled {
				notifier = notify.NewMultiNotifier(&app.Config.Notifications)
				bus.RegisterConsumer(stream.ConsumerFunc(func(r *engine.TickResult) {
					ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					for i := range r.Signals {
						if err := notifier.SendSignal(ctx, r.Symbol, r.SpotPrice, &r.Signals[i]); err != nil {
							app.Logger.Warn().Err(err).Msg("signal notification failed")
						}
					}
				}))
			}

			pcfg := poller.DefaultConfig()
			pcfg.Interval = interval
			pcfg.FetchTimeout = app.Config.Feed.RequestTimeout
			pcfg.MarketHoursOnly = replayPath == "" && app.Config.Feed.Source == "nse"

			p := poller.New(pcfg, src, eng, bus, app.buildSession(), app.Logger)
			if notifier != nil {
				p.SetNotifier(notifier)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output.Info("Polling %s every %s. Ctrl-C to stop.", app.Config.Analysis.Symbol, interval)
			err = p.Run(ctx)

			stats := p.Stats()
			output.Println()
			output.Info("Stopped. Ticks: %d  Fetch errors: %d", stats.Ticks, stats.FetchErrors)

			if summary && app.Store != nil {
				printDailySummary(output, app, time.Now())
			}

			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("replay", "", "directory of saved chain JSON files to replay")
	cmd.Flags().Duration("interval", 0, "polling interval (default: feed.refresh_interval)")
	cmd.Flags().Bool("quiet", false, "suppress per-tick terminal output")
	cmd.Flags().Bool("summary", false, "print the session summary when stopping")

	return cmd
}

// renderTickLine prints a compact one-line view of a tick result, with
// signals expanded below it.
func renderTickLine(output *Output, r *engine.TickResult) {
	output.Printf("[%s] %s spot %.2f  bias %s %s  zones %d  signals %d\n",
		FormatTime(r.Timestamp), r.Symbol, r.SpotPrice,
		output.FormatBias(r.Bias.Total),
		output.Verdict(string(r.Bias.Classification)),
		len(r.Zones), len(r.Signals))

	for i := range r.Signals {
		displaySignal(output, &r.Signals[i])
	}
}

// printDailySummary loads and renders the stored summary for a day.
func printDailySummary(output *Output, app *App, day time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := app.Store.GetDailySummary(ctx, app.Config.Analysis.Symbol, day)
	if err != nil {
		if errs.Is(err, errs.ErrDataNotFound) {
			output.Dim("No stored ticks for %s.", day.Format("2006-01-02"))
		} else {
			output.Warning("Summary unavailable: %v", err)
		}
		return
	}

	output.Println()
	output.Bold("Session Summary  %s  %s", s.Symbol, s.Date)
	output.Printf("  Spot:     %.2f → %.2f\n", s.SpotOpen, s.SpotClose)
	output.Printf("  Ticks:    %d\n", s.Ticks)
	output.Printf("  Signals:  %d (entries %d, reversals %d, expiry %d)\n",
		s.Signals, s.TradeEntries, s.ReversalAlerts, s.ExpirySignals)
	output.Printf("  Verdict:  %s\n", output.Verdict(s.FinalVerdict))
}
