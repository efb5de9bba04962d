package indicator

import (
	"errors"
	"fmt"

	"indicore/internal/model"
)

// TFSpecs groups the indicator specs computed for one timeframe.
type TFSpecs struct {
	TF    int    `json:"tf" yaml:"tf"` // timeframe in seconds
	Specs []Spec `json:"indicators" yaml:"indicators"`
}

// slotTemplate is one configured indicator for a TF: the erased
// configuration is built once and shared by every series — dynamic Init
// clones it internally, so each series still gets independent state.
type slotTemplate struct {
	spec  Spec
	label string
	cfg   ConfigDyn[model.Candle]
}

// slot is one running indicator for one symbol series.
type slot struct {
	tmpl *slotTemplate
	inst Instance[model.Candle] // nil until the first candle seeds it
	seed model.Candle           // candle that seeded inst, kept for restore
}

// Engine computes a mixed collection of indicators across multiple TFs
// for multiple symbols. Designed for single-goroutine usage — no locks.
type Engine struct {
	registry  *Registry
	configs   []TFSpecs
	templates [][]*slotTemplate

	// state[tfIdx][seriesKey] → slots
	state []map[string][]*slot
}

// NewEngine creates an engine computing the given per-TF indicator
// specs. Fails when any spec names an unknown kind or carries
// parameters its kind rejects.
func NewEngine(registry *Registry, configs []TFSpecs) (*Engine, error) {
	templates, err := buildTemplates(registry, configs)
	if err != nil {
		return nil, err
	}
	state := make([]map[string][]*slot, len(configs))
	for i := range state {
		state[i] = make(map[string][]*slot, 64)
	}
	return &Engine{
		registry:  registry,
		configs:   configs,
		templates: templates,
		state:     state,
	}, nil
}

// Configs returns the engine's current per-TF specs.
func (e *Engine) Configs() []TFSpecs { return e.configs }

// Process feeds one candle to every indicator configured for its TF and
// returns their updates in slot order. Slots are seeded lazily from the
// first candle their series sees; a slot whose seeding fails is skipped
// this round (and retried on the next candle), with the failure
// reported in the returned error.
func (e *Engine) Process(c model.Candle) ([]model.IndicatorUpdate, error) {
	tfIdx := e.findTF(c.TF)
	if tfIdx == -1 {
		return nil, nil // TF not configured for indicators
	}

	key := c.Key()
	slots, exists := e.state[tfIdx][key]
	if !exists {
		slots = e.createSlots(tfIdx)
		e.state[tfIdx][key] = slots
	}

	var errs []error
	updates := make([]model.IndicatorUpdate, 0, len(slots))
	for _, sl := range slots {
		if sl.inst == nil {
			inst, err := sl.tmpl.cfg.Init(c)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", key, sl.tmpl.label, err))
				continue
			}
			sl.inst = inst
			sl.seed = c
		}
		res := sl.inst.Next(c)
		updates = append(updates, model.NewIndicatorUpdate(sl.tmpl.label, c, res))
	}
	return updates, errors.Join(errs...)
}

// Reload swaps the engine's configuration, preserving the running state
// of every slot whose spec is unchanged. New or changed indicators
// start cold; removed ones are dropped.
func (e *Engine) Reload(configs []TFSpecs) error {
	templates, err := buildTemplates(e.registry, configs)
	if err != nil {
		return err
	}

	state := make([]map[string][]*slot, len(configs))
	for tfIdx, cfg := range configs {
		state[tfIdx] = make(map[string][]*slot, 64)

		oldIdx := e.findTF(cfg.TF)
		if oldIdx == -1 {
			continue // newly configured TF — series seed lazily
		}
		for key, oldSlots := range e.state[oldIdx] {
			slots := make([]*slot, len(templates[tfIdx]))
			for i, tmpl := range templates[tfIdx] {
				slots[i] = &slot{tmpl: tmpl}
				for _, old := range oldSlots {
					if old.inst != nil && old.tmpl.spec.Equal(tmpl.spec) {
						slots[i].inst = old.inst
						slots[i].seed = old.seed
						break
					}
				}
			}
			state[tfIdx][key] = slots
		}
	}

	e.configs = configs
	e.templates = templates
	e.state = state
	return nil
}

// ValidateSpecs checks a proposed configuration without touching any
// engine, so callers can reject a bad reload before applying it.
func ValidateSpecs(registry *Registry, configs []TFSpecs) error {
	_, err := buildTemplates(registry, configs)
	return err
}

func (e *Engine) findTF(tf int) int {
	for i, cfg := range e.configs {
		if cfg.TF == tf {
			return i
		}
	}
	return -1
}

// createSlots creates cold slots for every template of a TF.
func (e *Engine) createSlots(tfIdx int) []*slot {
	tmpls := e.templates[tfIdx]
	slots := make([]*slot, len(tmpls))
	for i, tmpl := range tmpls {
		slots[i] = &slot{tmpl: tmpl}
	}
	return slots
}

func buildTemplates(registry *Registry, configs []TFSpecs) ([][]*slotTemplate, error) {
	templates := make([][]*slotTemplate, len(configs))
	for i, cfg := range configs {
		if cfg.TF <= 0 {
			return nil, fmt.Errorf("timeframe %d is not positive: %w", cfg.TF, ErrInvalidParameter)
		}
		templates[i] = make([]*slotTemplate, len(cfg.Specs))
		for j, spec := range cfg.Specs {
			dyn, err := registry.New(spec)
			if err != nil {
				return nil, fmt.Errorf("tf %d: %w", cfg.TF, err)
			}
			templates[i][j] = &slotTemplate{spec: spec, label: spec.Label(), cfg: dyn}
		}
	}
	return templates, nil
}
