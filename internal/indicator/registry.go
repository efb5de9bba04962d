package indicator

import (
	"fmt"
	"sort"
	"sync"

	"indicore/internal/model"
)

// Factory builds a defaulted, type-erased configuration for one
// indicator kind.
type Factory func() ConfigDyn[model.Candle]

// Spec names an indicator kind plus its textual parameters — the form
// indicators take in env strings, YAML strategy files and reload
// requests.
type Spec struct {
	Kind   string            `json:"kind" yaml:"kind"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// paramOrder is the canonical parameter ordering for labels; anything
// not listed sorts alphabetically after these.
var paramOrder = []string{"period", "zone", "fast", "slow", "signal"}

// Label returns a stable display name like "SMA_20" or "MACD_12_26_9",
// used as the slot identity for matching across reloads and restores.
func (s Spec) Label() string {
	label := s.Kind
	seen := make(map[string]bool, len(s.Params))
	for _, name := range paramOrder {
		if v, ok := s.Params[name]; ok {
			label += "_" + v
			seen[name] = true
		}
	}
	var rest []string
	for name := range s.Params {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		label += "_" + s.Params[name]
	}
	return label
}

// Equal reports whether two specs describe the same indicator.
func (s Spec) Equal(o Spec) bool {
	if s.Kind != o.Kind || len(s.Params) != len(o.Params) {
		return false
	}
	for k, v := range s.Params {
		if o.Params[k] != v {
			return false
		}
	}
	return true
}

// Registry maps indicator kind names to factories, so hosts can build
// erased configurations from runtime text without knowing any concrete
// type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds (or replaces) the factory for a kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a configuration from a spec: look up the kind, apply each
// parameter through the dynamic Set (deterministically, in sorted key
// order), then require the result to validate.
func (r *Registry) New(spec Spec) (ConfigDyn[model.Candle], error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown indicator kind %q: %w", spec.Kind, ErrInvalidParameter)
	}

	cfg := f()
	names := make([]string, 0, len(spec.Params))
	for name := range spec.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := cfg.Set(name, spec.Params[name]); err != nil {
			return nil, err
		}
	}
	if !cfg.Validate() {
		return nil, errInvalidConfig(spec.Kind)
	}
	return cfg, nil
}

// Builtin returns a registry carrying all shipped indicator kinds with
// their conventional defaults.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("SMA", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewSMA[model.Candle](20))
	})
	r.Register("EMA", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewEMA[model.Candle](9))
	})
	r.Register("SMMA", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewSMMA[model.Candle](7))
	})
	r.Register("RSI", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewRSI[model.Candle](14))
	})
	r.Register("MACD", func() ConfigDyn[model.Candle] {
		return Erase[model.Candle](NewMACD[model.Candle](12, 26, 9))
	})
	return r
}
