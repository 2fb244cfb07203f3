package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/store"
)

func newSignalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Query stored signals",
		Long: `List signals recorded by previous analyze and run sessions,
newest first.`,
		Example: `  options-analyzer signals
  options-analyzer signals --kind TRADE_ENTRY --limit 20
  options-analyzer signals --date 2026-08-27 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Error("Store is disabled or unavailable.")
				return fmt.Errorf("store unavailable")
			}

			kind, _ := cmd.Flags().GetString("kind")
			side, _ := cmd.Flags().GetString("side")
			date, _ := cmd.Flags().GetString("date")
			limit, _ := cmd.Flags().GetInt("limit")

			filter, err := app.signalFilter(kind, side, date, limit)
			if err != nil {
				output.Error("Invalid filter: %v", err)
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			records, err := app.Store.GetSignals(ctx, filter)
			if err != nil {
				output.Error("Query failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(records)
			}

			if len(records) == 0 {
				output.Dim("No signals found.")
				return nil
			}

			table := NewTable(output, "TIME", "KIND", "STRIKE", "SIDE", "ENTRY", "TARGET", "SL", "BIAS", "VERDICT")
			for _, r := range records {
				table.AddRow(
					r.Time,
					r.Kind,
					fmt.Sprintf("%.0f", r.Strike),
					r.Side,
					fmt.Sprintf("%.2f", r.EntryPrice),
					fmt.Sprintf("%.2f", r.TargetPrice),
					fmt.Sprintf("%.2f", r.StopLossPrice),
					output.FormatBias(r.BiasTotal),
					r.Classification,
				)
			}
			table.Render()
			output.Dim("%d signal(s)", len(records))
			return nil
		},
	}

	cmd.Flags().String("kind", "", "filter by kind (TRADE_ENTRY, REVERSAL_ALERT, LIQUIDITY_SPIKE, EXPIRY_SIGNAL)")
	cmd.Flags().String("side", "", "filter by side (CE, PE)")
	cmd.Flags().String("date", "", "restrict to one day (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 50, "maximum rows")

	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored signals to CSV",
		Example: `  options-analyzer export
  options-analyzer export --date 2026-08-27 --dir ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Error("Store is disabled or unavailable.")
				return fmt.Errorf("store unavailable")
			}

			kind, _ := cmd.Flags().GetString("kind")
			date, _ := cmd.Flags().GetString("date")
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Config.Store.ExportDir
			}

			filter, err := app.signalFilter(kind, "", date, 0)
			if err != nil {
				output.Error("Invalid filter: %v", err)
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			path, err := store.ExportSignalsCSV(ctx, app.Store, filter, dir)
			if err != nil {
				output.Error("Export failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Exported to %s", path)
			return nil
		},
	}

	cmd.Flags().String("kind", "", "filter by kind")
	cmd.Flags().String("date", "", "restrict to one day (YYYY-MM-DD)")
	cmd.Flags().String("dir", "", "output directory (default: store.export_dir)")

	return cmd
}

func newSummaryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a stored session summary",
		Example: `  options-analyzer summary
  options-analyzer summary --date 2026-08-27`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Error("Store is disabled or unavailable.")
				return fmt.Errorf("store unavailable")
			}

			date, _ := cmd.Flags().GetString("date")
			day, err := app.parseDay(date)
			if err != nil {
				output.Error("Invalid date: %v", err)
				return err
			}

			if output.IsJSON() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				s, err := app.Store.GetDailySummary(ctx, app.Config.Analysis.Symbol, day)
				if err != nil {
					return err
				}
				return output.JSON(s)
			}

			printDailySummary(output, app, day)
			return nil
		},
	}

	cmd.Flags().String("date", "", "day to summarize (YYYY-MM-DD, default today)")

	return cmd
}

// signalFilter assembles a store filter from the common command flags.
func (app *App) signalFilter(kind, side, date string, limit int) (store.SignalFilter, error) {
	filter := store.SignalFilter{
		Symbol: app.Config.Analysis.Symbol,
		Kind:   strings.ToUpper(kind),
		Side:   strings.ToUpper(side),
		Limit:  limit,
	}
	if date != "" {
		day, err := app.parseDay(date)
		if err != nil {
			return filter, err
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		filter.StartTime = start
		filter.EndTime = start.Add(24 * time.Hour)
	}
	return filter, nil
}
