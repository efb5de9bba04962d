package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"indicore/internal/indicator"
	"indicore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backtests and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads candles for a given symbol and TF after the given unix
// timestamp. Results are ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadCandles(symbol string, tf int, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// ReadAllCandles reads all candles for a TF across symbols, ordered by timestamp.
func (r *Reader) ReadAllCandles(tf int, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM candles
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&c.Symbol, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Symbols returns the distinct symbols stored for a TF.
func (r *Reader) Symbols(tf int) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM candles WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ReadLatestSnapshot loads the most recent engine snapshot from SQLite.
// Returns (nil, nil) when no snapshot exists.
func (r *Reader) ReadLatestSnapshot() (*indicator.EngineSnapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM engine_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap indicator.EngineSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
