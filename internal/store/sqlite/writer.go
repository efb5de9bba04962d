package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"indicore/internal/indicator"
	"indicore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It persists completed candles for backtests and engine snapshots for
// durable restarts.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			tf      INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Forming candles are skipped — only completed candles are persisted.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			if candle.Forming {
				continue
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertBatch inserts a batch of candles in a single transaction.
func (w *Writer) InsertBatch(candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.TF, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored candle timestamp for a series.
// Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveSnapshot saves an engine snapshot to SQLite.
func (w *Writer) SaveSnapshot(snap *indicator.EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = w.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots — keep last 10
	_, err = w.db.Exec(`DELETE FROM engine_snapshots WHERE id NOT IN (SELECT id FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT 10)`)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
