package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"indicore/internal/gateway"
	"indicore/internal/logger"
	"indicore/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if err := godotenv.Load(); err == nil {
		log.Println("[gateway] loaded .env")
	}
	logger.Init("gateway", slog.LevelInfo)
	log.Println("[gateway] starting...")

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	listenAddr := getEnv("GATEWAY_ADDR", ":9090")
	metricsAddr := getEnv("GATEWAY_METRICS_ADDR", ":9091")
	enabledTFs := getEnv("ENABLED_TFS", "60,120,180,300")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[gateway] redis connection failed: %v", err)
	}
	log.Printf("[gateway] redis connected at %s", redisAddr)

	tfs := parseTFs(enabledTFs)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(tfs)
	health.SetEngineOK(true)
	health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)
	metricsSrv := metrics.NewServer(metricsAddr, health)
	metricsSrv.Start()

	hub := gateway.NewHub(rdb, tfs, prom)
	go hub.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, processStart)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, rdb, ctx, tfs, processStart)

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[gateway] serving at http://localhost%s", listenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[gateway] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[gateway] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	rdb.Close()
}

func parseTFs(s string) []int {
	var tfs []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
