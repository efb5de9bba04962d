package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine and
// gateway.
type Metrics struct {
	CandlesConsumed prometheus.Counter
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Indicator engine
	ComputeDur      prometheus.Histogram
	UpdatesTotal    *prometheus.CounterVec // labels: tf
	SnapshotsTotal  prometheus.Counter
	ReloadsTotal    prometheus.Counter
	InitFailures    prometheus.Counter
	RingBufOverflow prometheus.Counter

	// Stream consumption
	PELMessagesReclaimed prometheus.Counter

	// Gateway
	WSClients       prometheus.Gauge
	WSMessagesSent  prometheus.Counter
	WSReplaysServed prometheus.Counter

	// End-to-end: candle timestamp → update publish
	E2ELatency prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_candles_consumed_total",
			Help: "Total candles consumed from Redis streams",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indicore_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indicore_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indicore_compute_duration_seconds",
			Help:    "Indicator engine compute latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indicore_updates_total",
			Help: "Total indicator updates computed (by timeframe)",
		}, []string{"tf"}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_snapshots_total",
			Help: "Total engine snapshots persisted",
		}),
		ReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_reloads_total",
			Help: "Total successful indicator config reloads",
		}),
		InitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_init_failures_total",
			Help: "Indicator instances that failed to seed from a candle",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped candles)",
		}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indicore_ws_clients",
			Help: "Currently connected WebSocket clients",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_ws_messages_sent_total",
			Help: "WebSocket messages fanned out to clients",
		}),
		WSReplaysServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indicore_ws_replays_served_total",
			Help: "Gap backfill replay requests served",
		}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indicore_e2e_latency_seconds",
			Help:    "Latency from candle timestamp to update publish",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	prometheus.MustRegister(
		m.CandlesConsumed,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.ComputeDur,
		m.UpdatesTotal,
		m.SnapshotsTotal,
		m.ReloadsTotal,
		m.InitFailures,
		m.RingBufOverflow,
		m.PELMessagesReclaimed,
		m.WSClients,
		m.WSMessagesSent,
		m.WSReplaysServed,
		m.E2ELatency,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	LastCandleTime time.Time `json:"last_candle_time"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK || !h.EngineOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EngineOK        bool    `json:"engine_ok"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
