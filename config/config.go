package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Dynamic Timeframes (comma-separated seconds, e.g. "60,300,900")
	EnabledTFs string

	// Indicator set, either inline ("SMA:20,EMA:9,RSI:14,MACD:12:26:9")
	// or from a YAML strategy file (takes precedence when set).
	IndicatorSpecs string
	StrategyFile   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9100"),

		// Default TFs: 1m, 2m, 3m, 5m
		EnabledTFs: getEnv("ENABLED_TFS", "60,120,180,300"),

		IndicatorSpecs: getEnv("INDICATOR_CONFIGS", "SMA:20,EMA:9,RSI:14"),
		StrategyFile:   getEnv("STRATEGY_FILE", ""),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
