package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"indicore/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes indicator updates to Redis: XADD to per-series streams,
// SET of the latest value, and PUBLISH for real-time subscribers.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads indicator updates from updCh and writes them to Redis.
// Blocks until ctx is cancelled or updCh is closed.
func (w *Writer) Run(ctx context.Context, updCh <-chan model.IndicatorUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updCh:
			if !ok {
				return
			}
			if err := w.writeUpdate(ctx, upd); err != nil {
				log.Printf("[redis] update pipeline error for %s: %v", upd.Name, err)
			}
		}
	}
}

// WriteBatch writes multiple indicator updates in a single Redis pipeline.
// This batches XADD + SET + PUBLISH for all updates into one network roundtrip.
// Uses pre-built channel names and zero-copy []byte→string conversion.
func (w *Writer) WriteBatch(ctx context.Context, updates []model.IndicatorUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range updates {
		upd := &updates[i]

		jsonBytes := upd.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
		pubsubCh := upd.PubSubChannel()

		if upd.Live {
			// Live/preview updates: PubSub only, never persisted
			pipe.Publish(ctx, pubsubCh, jsonData)
			continue
		}

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: upd.StreamKey(),
			MaxLen: updateStreamMaxLen(upd.TF),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, latestKey(upd), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update batch pipeline (%d updates): %w", len(updates), err)
	}
	return nil
}

// writeUpdate publishes a single indicator update.
func (w *Writer) writeUpdate(ctx context.Context, upd model.IndicatorUpdate) error {
	jsonBytes := upd.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	pubsubCh := upd.PubSubChannel()

	if upd.Live {
		return w.client.Publish(ctx, pubsubCh, jsonData).Err()
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: upd.StreamKey(),
		MaxLen: updateStreamMaxLen(upd.TF),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey(&upd), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	return err
}

// latestKey builds the SET key holding the most recent confirmed update,
// e.g. "ind:SMA_20:60s:latest:BTCUSDT".
func latestKey(upd *model.IndicatorUpdate) string {
	return "ind:" + upd.Name + ":" + model.Itoa(upd.TF) + "s:latest:" + upd.Symbol
}

// updateStreamMaxLen returns the XADD trim length for an update stream:
// roughly three hours of results at the given timeframe, with a buffer.
func updateStreamMaxLen(tf int) int64 {
	if tf <= 0 {
		return 200
	}
	maxLen := int64(10800/tf) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
