package indengine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"indicore/internal/indicator"
	"indicore/internal/metrics"
	"indicore/internal/model"
	"indicore/internal/ringbuf"
	redisstore "indicore/internal/store/redis"
	sqlitestore "indicore/internal/store/sqlite"
)

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	registry *indicator.Registry

	// engine is single-goroutine by design; engineMu serializes Process
	// against reloads and snapshots.
	engineMu sync.Mutex
	engine   *indicator.Engine

	redisReader *redisstore.Reader
	redisWriter *redisstore.BufferedWriter
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server

	streams  []string
	candleCh chan model.Candle
	sqliteCh chan model.Candle

	// SPSC handoff between the compute loop and the Redis writer loop, so
	// indicator computation never blocks on network I/O.
	updateRing *ringbuf.Ring[model.IndicatorUpdate]
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite; the engine is built in Run after
// snapshot restore.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:        cfg,
		registry:   indicator.Builtin(),
		prom:       metrics.NewMetrics(),
		health:     metrics.NewHealthStatus(),
		candleCh:   make(chan model.Candle, 5000),
		sqliteCh:   make(chan model.Candle, 5000),
		updateRing: ringbuf.New[model.IndicatorUpdate](8192),
	}

	// ---- Connect to Redis ----
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	writer, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[indengine] redis circuit breaker: %v → %v", from, to)
	}
	svc.redisWriter = redisstore.NewBufferedWriter(context.Background(), writer, cb, 10000)

	// ---- Open SQLite ----
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[indengine] WARNING: sqlite reader init failed: %v (continuing without snapshot fallback)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[indengine] WARNING: sqlite writer init failed: %v", err)
	}

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[indengine] starting indicator engine service...")

	// ---- Restore engine from snapshot ----
	snap, err := svc.restoreEngine(ctx)
	if err != nil {
		return err
	}

	// ---- Discover streams ----
	svc.streams = svc.redisReader.DiscoverStreams(ctx, cfg.EnabledTFs)
	log.Printf("[indengine] consuming from %d streams: %v", len(svc.streams), svc.streams)

	// ---- Replay delta since snapshot ----
	if snap != nil && snap.StreamID != "" {
		svc.replayDelta(ctx, snap.StreamID)
	}

	// ---- Ensure consumer groups ----
	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[indengine] WARNING: consumer group setup: %v", err)
		}
	}

	// ---- Recover pending messages ----
	if len(svc.streams) > 0 {
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.candleCh); err != nil {
			log.Printf("[indengine] pending recovery error: %v", err)
		}
	}

	// ---- Start subsystems ----
	svc.startPELReclaimer(ctx)
	go svc.processLoop(ctx)
	go svc.writerLoop(ctx)
	svc.startConsumer(ctx)
	go svc.snapshotLoop(ctx)
	svc.startHTTP(ctx)
	svc.startConfigSubscriber(ctx)
	if svc.sqlWriter != nil {
		go svc.sqlWriter.Run(ctx, svc.sqliteCh)
	}

	// ---- Health and metrics ----
	svc.health.SetEnabledTFs(cfg.EnabledTFs)
	svc.health.SetEngineOK(true)
	if svc.sqlWriter != nil {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Underlying().Client(), svc.sqlWriter.DB(), 10*time.Second)
	} else {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Underlying().Client(), nil, 10*time.Second)
	}
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.metricsSrv.Start()

	log.Printf("[indengine] running: TFs=%v, snapshot every %ds", cfg.EnabledTFs, cfg.SnapshotIntervalS)

	// Block until context cancelled
	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[indengine] shutdown signal received, saving final snapshot...")

	svc.engineMu.Lock()
	finalSnap, err := indicator.SnapshotEngine(svc.engine, "shutdown")
	svc.engineMu.Unlock()
	if err == nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutCancel()

		if svc.redisReader != nil {
			svc.redisReader.WriteSnapshot(shutCtx, svc.cfg.SnapshotKey, finalSnap)
		}
		if svc.sqlWriter != nil {
			svc.sqlWriter.SaveSnapshot(finalSnap)
		}
		log.Println("[indengine] final snapshot saved")
	}

	if svc.metricsSrv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		svc.metricsSrv.Stop(stopCtx)
		stopCancel()
	}

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Underlying().Close()
	svc.redisReader.Close()

	log.Println("[indengine] shutdown complete.")
}

// restoreEngine builds the engine from the latest snapshot (Redis first,
// SQLite fallback) and the configured specs. Returns the snapshot used, if
// any, so the caller can replay the delta since it was taken.
func (svc *Service) restoreEngine(ctx context.Context) (*indicator.EngineSnapshot, error) {
	snap, err := svc.redisReader.ReadSnapshot(ctx, svc.cfg.SnapshotKey)
	if err != nil {
		log.Printf("[indengine] redis snapshot read error: %v", err)
	}

	if snap == nil && svc.sqlReader != nil {
		snap, err = svc.sqlReader.ReadLatestSnapshot()
		if err != nil {
			log.Printf("[indengine] sqlite snapshot read error: %v", err)
		}
	}

	if snap == nil {
		log.Println("[indengine] no snapshot found, starting cold")
		svc.engine, err = indicator.NewEngine(svc.registry, svc.cfg.TFSpecs)
		return nil, err
	}

	svc.engine, err = indicator.RestoreEngine(svc.registry, svc.cfg.TFSpecs, snap)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// replayDelta replays candles recorded since the snapshot to catch up on
// data missed while the service was down.
func (svc *Service) replayDelta(ctx context.Context, startID string) {
	log.Printf("[indengine] replaying delta from stream ID: %s", startID)
	replayCh := make(chan model.Candle, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, startID, replayCh)
			if err != nil {
				log.Printf("[indengine] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	deltaCount := 0
	for c := range replayCh {
		if c.Forming {
			continue
		}
		updates, err := svc.engine.Process(c)
		if err != nil {
			log.Printf("[indengine] replay process error: %v", err)
		}
		if len(updates) > 0 {
			svc.redisWriter.WriteBatch(updates)
		}
		deltaCount++
	}
	log.Printf("[indengine] replayed %d delta candles", deltaCount)
}
