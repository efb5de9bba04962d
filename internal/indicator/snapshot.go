package indicator

import (
	"encoding/json"
	"fmt"
	"log"

	"indicore/internal/model"
)

// Snapshottable is implemented by instances that support state
// serialization. All shipped indicator kinds implement it.
type Snapshottable interface {
	Snapshot() (json.RawMessage, error)
	RestoreFromSnapshot(data json.RawMessage) error
}

// InstanceSnapshot holds everything needed to rebuild one running
// indicator: the spec to construct its configuration, the candle that
// seeded it, and the serialized internal state.
type InstanceSnapshot struct {
	Spec  Spec            `json:"spec"`
	Seed  model.Candle    `json:"seed"`
	State json.RawMessage `json:"state"`
}

// SeriesSnapshot holds indicator snapshots for a single series (symbol
// within a TF).
type SeriesSnapshot struct {
	Key        string             `json:"key"` // "symbol:{tf}s"
	TF         int                `json:"tf"`
	Indicators []InstanceSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of an indicator Engine.
type EngineSnapshot struct {
	StreamID string           `json:"stream_id"` // Redis Stream ID at checkpoint time
	Series   []SeriesSnapshot `json:"series"`
	Version  int              `json:"version"` // schema version for forward compat
}

// SnapshotEngine captures the full state of an Engine. Slots that have
// not been seeded yet are skipped — they carry no state worth saving.
func SnapshotEngine(e *Engine, streamID string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  1,
	}

	for tfIdx, cfg := range e.configs {
		for key, slots := range e.state[tfIdx] {
			ss := SeriesSnapshot{
				Key:        key,
				TF:         cfg.TF,
				Indicators: make([]InstanceSnapshot, 0, len(slots)),
			}
			for _, sl := range slots {
				if sl.inst == nil {
					continue
				}
				si, ok := sl.inst.(Snapshottable)
				if !ok {
					return nil, fmt.Errorf("indicator %s does not support snapshots", sl.tmpl.label)
				}
				state, err := si.Snapshot()
				if err != nil {
					return nil, fmt.Errorf("snapshot %s %s: %w", key, sl.tmpl.label, err)
				}
				ss.Indicators = append(ss.Indicators, InstanceSnapshot{
					Spec:  sl.tmpl.spec,
					Seed:  sl.seed,
					State: state,
				})
			}
			if len(ss.Indicators) > 0 {
				snap.Series = append(snap.Series, ss)
			}
		}
	}

	return snap, nil
}

// RestoreEngine rebuilds an Engine from a snapshot. It is tolerant of
// config changes — slots are matched to snapshots by spec rather than
// by index. Matching slots get their state restored; new indicators
// start fresh (cold). Removed indicators are silently skipped.
func RestoreEngine(registry *Registry, configs []TFSpecs, snap *EngineSnapshot) (*Engine, error) {
	e, err := NewEngine(registry, configs)
	if err != nil {
		return nil, err
	}

	for _, ss := range snap.Series {
		tfIdx := e.findTF(ss.TF)
		if tfIdx == -1 {
			continue // TF no longer configured — skip
		}

		slots := e.createSlots(tfIdx)
		restored, cold := 0, 0
		for _, sl := range slots {
			var match *InstanceSnapshot
			for i := range ss.Indicators {
				if ss.Indicators[i].Spec.Equal(sl.tmpl.spec) {
					match = &ss.Indicators[i]
					break
				}
			}
			if match == nil {
				cold++
				continue // new indicator — seeds lazily on the next candle
			}

			inst, err := sl.tmpl.cfg.Init(match.Seed)
			if err != nil {
				cold++
				continue
			}
			si, ok := inst.(Snapshottable)
			if !ok {
				cold++
				continue
			}
			if err := si.RestoreFromSnapshot(match.State); err != nil {
				// Non-fatal: leave the slot cold
				cold++
				continue
			}
			sl.inst = inst
			sl.seed = match.Seed
			restored++
		}

		if cold > 0 {
			log.Printf("[restorer] %s: restored %d, cold-started %d indicators",
				ss.Key, restored, cold)
		}
		e.state[tfIdx][ss.Key] = slots
	}

	return e, nil
}
