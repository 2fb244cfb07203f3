// Package store provides data persistence for analysis results.
package store

import (
	"context"
	"time"

	"options-analyzer/internal/engine"
)

// DataStore defines the interface for analysis persistence.
type DataStore interface {
	// Ticks
	SaveTick(ctx context.Context, tick *engine.TickResult) error
	GetTicks(ctx context.Context, filter TickFilter) ([]TickRecord, error)
	GetLastTickTime(ctx context.Context, symbol string) (time.Time, error)

	// Signals
	GetSignals(ctx context.Context, filter SignalFilter) ([]SignalRecord, error)

	// Zones
	GetZones(ctx context.Context, filter ZoneFilter) ([]ZoneRecord, error)

	// Summaries
	GetDailySummary(ctx context.Context, symbol string, date time.Time) (*DailySummaryRow, error)

	// Lifecycle
	Close() error
}

// TickFilter represents filters for querying analysis ticks.
type TickFilter struct {
	Symbol    string
	StartTime time.Time
	EndTime   time.Time
	Mode      string
	Limit     int
}

// SignalFilter represents filters for querying signals.
type SignalFilter struct {
	Symbol    string
	Kind      string
	Side      string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// ZoneFilter represents filters for querying recorded zones.
type ZoneFilter struct {
	Symbol    string
	Kind      string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// TickRecord is one persisted analysis tick.
type TickRecord struct {
	ID        int64
	Symbol    string
	Timestamp time.Time
	SpotPrice float64
	ATMStrike float64
	Mode      string
	BiasTotal float64
	Verdict   string
	Partial   bool
	Flags     []string
	Signals   int
}

// SignalRecord is one persisted signal, shaped for both SQL scanning
// and CSV export.
type SignalRecord struct {
	ID             string    `csv:"id"`
	Symbol         string    `csv:"symbol"`
	Timestamp      time.Time `csv:"-"`
	Time           string    `csv:"time"`
	Kind           string    `csv:"kind"`
	Strike         float64   `csv:"strike"`
	Side           string    `csv:"side"`
	EntryPrice     float64   `csv:"entry"`
	TargetPrice    float64   `csv:"target"`
	StopLossPrice  float64   `csv:"stop_loss"`
	BiasTotal      float64   `csv:"bias_total"`
	Classification string    `csv:"classification"`
	Reason         string    `csv:"reason"`
}

// ZoneRecord is one persisted zone observation.
type ZoneRecord struct {
	ID             int64
	Symbol         string
	Timestamp      time.Time
	Kind           string
	PriceLevel     float64
	Strength       float64
	ConfirmedTicks int
}

// DailySummaryRow aggregates one session's activity.
type DailySummaryRow struct {
	Date           string
	Symbol         string
	Ticks          int
	Signals        int
	TradeEntries   int
	ReversalAlerts int
	ExpirySignals  int
	SpotOpen       float64
	SpotClose      float64
	FinalVerdict   string
}
