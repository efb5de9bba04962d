package indengine

import (
	"log"
	"os"
	"strconv"
	"strings"

	appcfg "indicore/config"
	"indicore/internal/indicator"
)

// Config holds all env-parsed configuration for the indicator engine service.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	ConsumerGroup string
	ConsumerName  string

	EnabledTFs        []int
	SnapshotIntervalS int
	SnapshotKey       string
	HTTPAddr          string
	PELIntervalS      int
	PELMinIdleMs      int64

	TFSpecs []indicator.TFSpecs
}

// LoadConfig reads the environment and builds the service configuration.
// When STRATEGY_FILE is set, the per-TF indicator set comes from the YAML
// strategy file; otherwise the INDICATOR_CONFIGS spec string is applied to
// every enabled TF.
func LoadConfig() (Config, error) {
	base := appcfg.Load()
	tfs := base.ParseTFs()

	var tfSpecs []indicator.TFSpecs
	if base.StrategyFile != "" {
		var err error
		tfSpecs, err = appcfg.LoadStrategyFile(base.StrategyFile)
		if err != nil {
			return Config{}, err
		}
		tfs = tfs[:0]
		for _, ts := range tfSpecs {
			tfs = append(tfs, ts.TF)
		}
		log.Printf("[indengine] loaded strategy file %s (%d timeframes)", base.StrategyFile, len(tfSpecs))
	} else {
		tfSpecs = BuildTFSpecs(tfs, ParseIndicatorSpecs(base.IndicatorSpecs))
	}

	pelInterval, _ := strconv.Atoi(getEnv("PEL_RECLAIM_INTERVAL_SEC", "30"))
	if pelInterval <= 0 {
		pelInterval = 30
	}
	pelMinIdle, _ := strconv.ParseInt(getEnv("PEL_MIN_IDLE_MS", "60000"), 10, 64)
	if pelMinIdle <= 0 {
		pelMinIdle = 60000
	}
	snapshotInterval, _ := strconv.Atoi(getEnv("SNAPSHOT_INTERVAL_SEC", "30"))
	if snapshotInterval <= 0 {
		snapshotInterval = 30
	}

	return Config{
		RedisAddr:     base.RedisAddr,
		RedisPassword: base.RedisPassword,
		SQLitePath:    base.SQLitePath,
		MetricsAddr:   base.MetricsAddr,

		ConsumerGroup: getEnv("CONSUMER_GROUP", "indicore"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),

		EnabledTFs:        tfs,
		SnapshotIntervalS: snapshotInterval,
		SnapshotKey:       getEnv("SNAPSHOT_KEY", "ind:snapshot:engine"),
		HTTPAddr:          getEnv("INDENGINE_HTTP_ADDR", ":9095"),
		PELIntervalS:      pelInterval,
		PELMinIdleMs:      pelMinIdle,

		TFSpecs: tfSpecs,
	}, nil
}

// BuildTFSpecs applies one indicator set to every enabled TF.
func BuildTFSpecs(tfs []int, specs []indicator.Spec) []indicator.TFSpecs {
	configs := make([]indicator.TFSpecs, len(tfs))
	for i, tf := range tfs {
		configs[i] = indicator.TFSpecs{TF: tf, Specs: specs}
	}
	return configs
}

// ParseIndicatorSpecs parses a compact spec string into indicator specs.
// Format: "KIND:ARG[:ARG...]," — e.g. "SMA:20,EMA:9,RSI:14:0.3,MACD:12:26:9".
// Positional args per kind: SMA/EMA/SMMA take a period, RSI takes a period
// and an optional zone, MACD takes fast:slow:signal.
// Returns defaults if input is empty; invalid entries are skipped.
func ParseIndicatorSpecs(s string) []indicator.Spec {
	if s == "" {
		return []indicator.Spec{
			{Kind: "SMA", Params: map[string]string{"period": "20"}},
			{Kind: "EMA", Params: map[string]string{"period": "9"}},
			{Kind: "RSI", Params: map[string]string{"period": "14"}},
			{Kind: "MACD", Params: map[string]string{"fast": "12", "slow": "26", "signal": "9"}},
		}
	}

	var specs []indicator.Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Split(part, ":")
		kind := strings.ToUpper(strings.TrimSpace(tokens[0]))
		args := tokens[1:]

		params := map[string]string{}
		ok := true
		switch kind {
		case "SMA", "EMA", "SMMA":
			if len(args) == 1 {
				params["period"] = args[0]
			} else {
				ok = false
			}
		case "RSI":
			switch len(args) {
			case 1:
				params["period"] = args[0]
			case 2:
				params["period"] = args[0]
				params["zone"] = args[1]
			default:
				ok = false
			}
		case "MACD":
			if len(args) == 3 {
				params["fast"] = args[0]
				params["slow"] = args[1]
				params["signal"] = args[2]
			} else {
				ok = false
			}
		default:
			ok = false
		}
		if !ok {
			log.Printf("[indengine] skipping invalid indicator spec: %q", part)
			continue
		}
		specs = append(specs, indicator.Spec{Kind: kind, Params: params})
	}
	if len(specs) == 0 {
		log.Println("[indengine] WARNING: no valid indicators parsed, using defaults")
		return ParseIndicatorSpecs("")
	}
	log.Printf("[indengine] loaded %d indicator specs from INDICATOR_CONFIGS", len(specs))
	return specs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
