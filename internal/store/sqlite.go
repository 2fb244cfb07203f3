// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/engine"
	errs "options-analyzer/internal/errors"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.NewStoreError("open", "", err)
	}

	// Single writer plus a few readers is enough for tick cadence
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errs.NewStoreError("init_schema", "", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Per-tick analysis results
	CREATE TABLE IF NOT EXISTS analysis_ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		spot_price REAL NOT NULL,
		atm_strike REAL NOT NULL,
		mode TEXT NOT NULL,
		bias_total REAL NOT NULL,
		verdict TEXT NOT NULL,
		partial INTEGER DEFAULT 0,
		flags TEXT,
		signal_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);

	-- Emitted signals
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		strike REAL NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL,
		target_price REAL,
		stop_loss_price REAL,
		bias_total REAL,
		classification TEXT,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Confirmed zone observations per tick
	CREATE TABLE IF NOT EXISTS zones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		price_level REAL NOT NULL,
		strength REAL NOT NULL,
		confirmed_ticks INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ticks_symbol_timestamp ON analysis_ticks(symbol, timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
	CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_kind ON signals(kind);
	CREATE INDEX IF NOT EXISTS idx_zones_symbol_timestamp ON zones(symbol, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTick persists one tick result with its signals and confirmed zones.
func (s *SQLiteStore) SaveTick(ctx context.Context, tick *engine.TickResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewStoreError("begin", "analysis_ticks", err)
	}
	defer tx.Rollback()

	flags, _ := json.Marshal(tick.Flags)
	partial := 0
	if tick.Partial {
		partial = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_ticks (symbol, timestamp, spot_price, atm_strike, mode, bias_total, verdict, partial, flags, signal_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tick.Symbol, tick.Timestamp, tick.SpotPrice, tick.ATMStrike, string(tick.Mode),
		tick.Bias.Total, string(tick.Bias.Classification), partial, string(flags), len(tick.Signals))
	if err != nil {
		return errs.NewStoreError("insert", "analysis_ticks", err)
	}

	if len(tick.Signals) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO signals (id, symbol, timestamp, kind, strike, side, entry_price, target_price, stop_loss_price, bias_total, classification, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errs.NewStoreError("prepare", "signals", err)
		}
		defer stmt.Close()

		for _, sig := range tick.Signals {
			_, err := stmt.ExecContext(ctx, sig.ID, tick.Symbol, sig.Timestamp, string(sig.Kind),
				sig.Strike, string(sig.Side), sig.EntryPrice, sig.TargetPrice, sig.StopLossPrice,
				sig.BiasTotal, string(sig.Classification), sig.Reason)
			if err != nil {
				return errs.NewStoreError("insert", "signals", err)
			}
		}
	}

	if len(tick.Zones) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO zones (symbol, timestamp, kind, price_level, strength, confirmed_ticks)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errs.NewStoreError("prepare", "zones", err)
		}
		defer stmt.Close()

		for _, z := range tick.Zones {
			_, err := stmt.ExecContext(ctx, tick.Symbol, tick.Timestamp, string(z.Kind),
				z.PriceLevel, z.Strength, z.ConfirmedTicks)
			if err != nil {
				return errs.NewStoreError("insert", "zones", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewStoreError("commit", "analysis_ticks", err)
	}

	return nil
}

// GetTicks retrieves persisted ticks matching a filter.
func (s *SQLiteStore) GetTicks(ctx context.Context, filter TickFilter) ([]TickRecord, error) {
	query := "SELECT id, symbol, timestamp, spot_price, atm_strike, mode, bias_total, verdict, partial, flags, signal_count FROM analysis_ticks WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}
	if filter.Mode != "" {
		query += " AND mode = ?"
		args = append(args, filter.Mode)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStoreError("query", "analysis_ticks", err)
	}
	defer rows.Close()

	var ticks []TickRecord
	for rows.Next() {
		var t TickRecord
		var partial int
		var flagsJSON string

		if err := rows.Scan(&t.ID, &t.Symbol, &t.Timestamp, &t.SpotPrice, &t.ATMStrike,
			&t.Mode, &t.BiasTotal, &t.Verdict, &partial, &flagsJSON, &t.Signals); err != nil {
			return nil, errs.NewStoreError("scan", "analysis_ticks", err)
		}

		t.Partial = partial == 1
		json.Unmarshal([]byte(flagsJSON), &t.Flags)
		ticks = append(ticks, t)
	}

	return ticks, rows.Err()
}

// GetLastTickTime returns the timestamp of the most recent tick for a symbol.
func (s *SQLiteStore) GetLastTickTime(ctx context.Context, symbol string) (time.Time, error) {
	var timestamp sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM analysis_ticks WHERE symbol = ?
	`, symbol).Scan(&timestamp)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, errs.NewStoreError("query", "analysis_ticks", err)
	}
	if !timestamp.Valid {
		return time.Time{}, nil
	}
	return timestamp.Time, nil
}

// GetSignals retrieves persisted signals matching a filter.
func (s *SQLiteStore) GetSignals(ctx context.Context, filter SignalFilter) ([]SignalRecord, error) {
	query := "SELECT id, symbol, timestamp, kind, strike, side, entry_price, target_price, stop_loss_price, bias_total, classification, reason FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, filter.Side)
	}
	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStoreError("query", "signals", err)
	}
	defer rows.Close()

	var signals []SignalRecord
	for rows.Next() {
		var r SignalRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Timestamp, &r.Kind, &r.Strike, &r.Side,
			&r.EntryPrice, &r.TargetPrice, &r.StopLossPrice, &r.BiasTotal, &r.Classification, &r.Reason); err != nil {
			return nil, errs.NewStoreError("scan", "signals", err)
		}
		r.Time = r.Timestamp.Format("2006-01-02 15:04:05")
		signals = append(signals, r)
	}

	return signals, rows.Err()
}

// GetZones retrieves persisted zone observations matching a filter.
func (s *SQLiteStore) GetZones(ctx context.Context, filter ZoneFilter) ([]ZoneRecord, error) {
	query := "SELECT id, symbol, timestamp, kind, price_level, strength, confirmed_ticks FROM zones WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewStoreError("query", "zones", err)
	}
	defer rows.Close()

	var zones []ZoneRecord
	for rows.Next() {
		var z ZoneRecord
		if err := rows.Scan(&z.ID, &z.Symbol, &z.Timestamp, &z.Kind, &z.PriceLevel,
			&z.Strength, &z.ConfirmedTicks); err != nil {
			return nil, errs.NewStoreError("scan", "zones", err)
		}
		zones = append(zones, z)
	}

	return zones, rows.Err()
}

// GetDailySummary aggregates one session's ticks and signals.
func (s *SQLiteStore) GetDailySummary(ctx context.Context, symbol string, date time.Time) (*DailySummaryRow, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := &DailySummaryRow{
		Date:   dayStart.Format("2006-01-02"),
		Symbol: symbol,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(signal_count), 0)
		FROM analysis_ticks
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
	`, symbol, dayStart, dayEnd).Scan(&summary.Ticks, &summary.Signals)
	if err != nil {
		return nil, errs.NewStoreError("query", "analysis_ticks", err)
	}

	if summary.Ticks == 0 {
		return nil, errs.ErrDataNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM signals
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY kind
	`, symbol, dayStart, dayEnd)
	if err != nil {
		return nil, errs.NewStoreError("query", "signals", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, errs.NewStoreError("scan", "signals", err)
		}
		switch analysis.SignalKind(kind) {
		case analysis.SignalTradeEntry:
			summary.TradeEntries = count
		case analysis.SignalReversalAlert:
			summary.ReversalAlerts = count
		case analysis.SignalExpiry:
			summary.ExpirySignals = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStoreError("scan", "signals", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT spot_price, verdict FROM analysis_ticks
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC LIMIT 1
	`, symbol, dayStart, dayEnd).Scan(&summary.SpotOpen, new(string))
	if err != nil {
		return nil, errs.NewStoreError("query", "analysis_ticks", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT spot_price, verdict FROM analysis_ticks
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1
	`, symbol, dayStart, dayEnd).Scan(&summary.SpotClose, &summary.FinalVerdict)
	if err != nil {
		return nil, errs.NewStoreError("query", "analysis_ticks", err)
	}

	return summary, nil
}

var _ DataStore = (*SQLiteStore)(nil)
