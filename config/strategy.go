package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"indicore/internal/indicator"
)

// Strategy is the YAML shape of a per-TF indicator configuration:
//
//	timeframes:
//	  - tf: 60
//	    indicators:
//	      - kind: SMA
//	        params: {period: "20"}
//	      - kind: MACD
//	        params: {fast: "12", slow: "26", signal: "9"}
//	  - tf: 300
//	    indicators:
//	      - kind: RSI
//	        params: {period: "14", zone: "0.3"}
type Strategy struct {
	Timeframes []indicator.TFSpecs `yaml:"timeframes"`
}

// LoadStrategyFile reads and parses a YAML strategy file.
func LoadStrategyFile(path string) ([]indicator.TFSpecs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}
	return ParseStrategy(data)
}

// ParseStrategy parses YAML strategy bytes into per-TF indicator specs.
func ParseStrategy(data []byte) ([]indicator.TFSpecs, error) {
	var s Strategy
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse strategy yaml: %w", err)
	}
	if len(s.Timeframes) == 0 {
		return nil, fmt.Errorf("strategy has no timeframes")
	}
	for _, tf := range s.Timeframes {
		if tf.TF <= 0 {
			return nil, fmt.Errorf("strategy tf %d is not positive", tf.TF)
		}
		if len(tf.Specs) == 0 {
			return nil, fmt.Errorf("strategy tf %d has no indicators", tf.TF)
		}
	}
	return s.Timeframes, nil
}
