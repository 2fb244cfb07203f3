package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/engine"
	errs "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "One-shot option chain analysis",
		Long: `Fetch the option chain once and run the full analysis pipeline:
- Black-Scholes Greeks per strike
- Weighted multi-factor bias score with verdict
- OI-backed support/resistance zones
- Reversal divergence and signal checks

With --replay, snapshots are read from a directory of saved NSE chain
JSON files instead of the live endpoint. Use --ticks to feed several
snapshots through the engine so stateful detectors warm up.`,
		Example: `  options-analyzer analyze
  options-analyzer analyze --replay ./chains --ticks 5
  options-analyzer analyze --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			replayPath, _ := cmd.Flags().GetString("replay")
			ticks, _ := cmd.Flags().GetInt("ticks")
			detailed, _ := cmd.Flags().GetBool("detailed")
			if ticks < 1 {
				ticks = 1
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

			var (
				snap   *models.OptionChainSnapshot
				result *engine.TickResult
			)
			for i := 0; i < ticks; i++ {
				s, err := src.Fetch(ctx)
				if err != nil {
					if errs.Is(err, errs.ErrDataNotFound) && snap != nil {
						break
					}
					output.Error("Fetch failed: %v", err)
					return err
				}
				r, err := eng.ProcessSnapshot(ctx, s)
				if err != nil {
					output.Error("Analysis failed: %v", err)
					return err
				}
				snap, result = s, r
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			source := SourceNSE
			if replayPath != "" || app.Config.Feed.Source == "file" {
				source = SourceFile
			}
			return displayTickResult(output, snap, result, source, detailed)
		},
	}

	cmd.Flags().String("replay", "", "directory of saved chain JSON files to replay")
	cmd.Flags().Int("ticks", 1, "number of snapshots to process before rendering")
	cmd.Flags().Bool("detailed", false, "show per-strike chain rows near ATM")

	return cmd
}

// displayTickResult renders a full analysis result to the terminal.
func displayTickResult(output *Output, snap *models.OptionChainSnapshot, result *engine.TickResult, source string, detailed bool) error {
	output.Println()
	output.Bold("%s Option Chain Analysis  %s", result.Symbol, output.SourceTag(source))
	output.Printf("  Time:    %s\n", FormatDateTime(result.Timestamp))
	output.Printf("  Spot:    %.2f    ATM: %.0f\n", result.SpotPrice, result.ATMStrike)
	output.Printf("  Mode:    %s", result.Mode)
	if len(result.Flags) > 0 {
		output.Printf("    Flags: %v", result.Flags)
	}
	output.Println()
	if snap != nil {
		if snap.PrevClose > 0 {
			chg := (result.SpotPrice - snap.PrevClose) / snap.PrevClose * 100
			output.Printf("  Change:  %s  (prev close %.2f)\n",
				output.ColoredString(output.ScoreColor(chg), FormatPercent(chg)), snap.PrevClose)
		}
		output.Printf("  Expiry:  %s (%d days)\n", FormatDate(snap.ExpiryDate), snap.DaysToExpiry)

		ceOI, peOI, vol := chainTotals(snap)
		if ceOI > 0 {
			output.Printf("  OI:      CE %s   PE %s   PCR %.2f   Vol %s\n",
				FormatCompact(float64(ceOI)), FormatCompact(float64(peOI)),
				float64(peOI)/float64(ceOI), FormatVolume(vol))
		}
	}
	output.Println()

	// Bias
	output.Bold("Bias")
	output.Printf("  Verdict: %s   Total: %s", output.Verdict(string(result.Bias.Classification)), output.FormatBias(result.Bias.Total))
	if result.Bias.Partial {
		output.Printf("   %s", output.Yellow("(partial)"))
	}
	output.Println()
	table := NewTable(output, "FACTOR", "RAW", "WEIGHT", "SCORE")
	for _, f := range result.Bias.Factors {
		table.AddRow(
			f.Name,
			fmt.Sprintf("%.2f", f.RawValue),
			fmt.Sprintf("%.1f", f.Weight),
			output.ColoredString(output.ScoreColor(f.Contribution), FormatBiasScore(f.Contribution)),
		)
	}
	table.Render()
	output.Println()

	// Zones
	output.Bold("Support / Resistance Zones")
	if len(result.Zones) == 0 {
		output.Dim("  No confirmed zones yet.")
	} else {
		zt := NewTable(output, "KIND", "LEVEL", "STRENGTH", "TICKS")
		for _, z := range result.Zones {
			kind := output.Green("SUPPORT")
			if z.Kind == analysis.ZoneResistance {
				kind = output.Red("RESISTANCE")
			}
			zt.AddRow(kind, fmt.Sprintf("%.0f", z.PriceLevel), FormatCompact(z.Strength), fmt.Sprintf("%d", z.ConfirmedTicks))
		}
		zt.Render()
	}
	output.Println()

	// Signals
	output.Bold("Signals")
	if len(result.Signals) == 0 {
		output.Dim("  No signals this tick.")
	} else {
		for i := range result.Signals {
			displaySignal(output, &result.Signals[i])
		}
	}

	if detailed && snap != nil {
		output.Println()
		displayChain(output, snap, result.ATMStrike)
	}

	return nil
}

// displaySignal renders one signal.
func displaySignal(output *Output, sig *analysis.Signal) {
	var tag string
	switch sig.Kind {
	case analysis.SignalTradeEntry:
		if sig.Side == models.CallSide {
			tag = output.Green("CALL ENTRY")
		} else {
			tag = output.Red("PUT ENTRY")
		}
	case analysis.SignalExpiry:
		tag = output.Yellow("EXPIRY ENTRY")
	case analysis.SignalReversalAlert:
		tag = output.Cyan("REVERSAL")
	case analysis.SignalLiquiditySpike:
		tag = output.Cyan("LIQUIDITY SPIKE")
	default:
		tag = string(sig.Kind)
	}

	output.Printf("  %s  %.0f %s", tag, sig.Strike, sig.Side)
	if sig.EntryPrice > 0 {
		output.Printf("  entry %s", FormatIndianCurrency(sig.EntryPrice))
	}
	if sig.TargetPrice > 0 {
		output.Printf("  target %s", FormatIndianCurrency(sig.TargetPrice))
	}
	if sig.StopLossPrice > 0 {
		output.Printf("  sl %s", FormatIndianCurrency(sig.StopLossPrice))
	}
	output.Println()
	if sig.Reason != "" {
		output.Dim("    %s", sig.Reason)
	}
}

// displayChain renders the strikes around ATM.
func displayChain(output *Output, snap *models.OptionChainSnapshot, atm float64) {
	output.Bold("Chain (ATM ± 5 strikes)")
	table := NewTable(output, "CE OI", "CE ΔOI", "CE IV", "CE LTP", "STRIKE", "PE LTP", "PE IV", "PE ΔOI", "PE OI")

	for i := range snap.Strikes {
		row := &snap.Strikes[i]
		if row.StrikePrice < atm-250 || row.StrikePrice > atm+250 {
			continue
		}
		strike := fmt.Sprintf("%.0f", row.StrikePrice)
		if row.StrikePrice == atm {
			strike = output.BoldText(strike + " *")
		}
		ce, pe := row.Call, row.Put
		table.AddRow(
			quoteOI(ce), quoteOIChange(ce), quoteIV(ce), quoteLTP(ce),
			strike,
			quoteLTP(pe), quoteIV(pe), quoteOIChange(pe), quoteOI(pe),
		)
	}
	table.Render()
}

// chainTotals sums OI and traded volume across both sides of the chain.
func chainTotals(snap *models.OptionChainSnapshot) (ceOI, peOI, vol int64) {
	for i := range snap.Strikes {
		row := &snap.Strikes[i]
		if row.Call != nil {
			ceOI += row.Call.OI
			vol += row.Call.Volume
		}
		if row.Put != nil {
			peOI += row.Put.OI
			vol += row.Put.Volume
		}
	}
	return ceOI, peOI, vol
}

func quoteOI(q *models.OptionQuote) string {
	if q == nil {
		return "-"
	}
	return FormatOI(q.OI)
}

func quoteOIChange(q *models.OptionQuote) string {
	if q == nil {
		return "-"
	}
	return FormatOI(q.OIChange)
}

func quoteIV(q *models.OptionQuote) string {
	if q == nil {
		return "-"
	}
	return FormatIV(q.IV)
}

func quoteLTP(q *models.OptionQuote) string {
	if q == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", q.LTP)
}
