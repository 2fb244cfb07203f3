package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	errs "options-analyzer/internal/errors"
)

// ExportSignalsCSV writes signals matching the filter to a CSV file under
// dir and returns the written path.
func ExportSignalsCSV(ctx context.Context, ds DataStore, filter SignalFilter, dir string) (string, error) {
	signals, err := ds.GetSignals(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(signals) == 0 {
		return "", errs.ErrDataNotFound
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.NewStoreError("mkdir", "", err)
	}

	symbol := filter.Symbol
	if symbol == "" {
		symbol = "all"
	}
	filename := fmt.Sprintf("signals-%s-%s.csv", symbol, time.Now().Format("20060102_150405"))
	outPath := filepath.Join(dir, filename)

	f, err := os.Create(outPath)
	if err != nil {
		return "", errs.NewStoreError("create", "", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&signals, f); err != nil {
		return "", errs.NewStoreError("marshal_csv", "signals", err)
	}

	return outPath, nil
}
