package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"indicore/internal/indengine"
	"indicore/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// .env is optional; real deployments use environment variables
	if err := godotenv.Load(); err == nil {
		log.Println("[indengine] loaded .env")
	}
	logger.Init("indengine", slog.LevelInfo)

	cfg, err := indengine.LoadConfig()
	if err != nil {
		log.Fatalf("[indengine] config: %v", err)
	}
	log.Printf("[indengine] enabled TFs: %v, snapshot interval: %ds", cfg.EnabledTFs, cfg.SnapshotIntervalS)

	svc, err := indengine.New(cfg)
	if err != nil {
		log.Fatalf("[indengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[indengine] fatal: %v", err)
	}
}
