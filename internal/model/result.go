package model

import "math"

// ResultCap is the fixed capacity of an IndicatorResult. Indicators with
// fewer outputs declare their arity via Size; slots past the declared
// length are unspecified and must not be read.
const ResultCap = 4

// Action is a trading signal emitted alongside an indicator value.
type Action int8

const (
	ActionNone Action = 0
	ActionBuy  Action = 1
	ActionSell Action = -1
)

func (a Action) String() string {
	switch {
	case a > 0:
		return "BUY"
	case a < 0:
		return "SELL"
	default:
		return "NONE"
	}
}

// IndicatorResult is the output of a single indicator step: up to ResultCap
// raw values and up to ResultCap signals, with the populated lengths carried
// alongside. The payload is opaque — consumers read it through accessors and
// never depend on a particular indicator's layout.
type IndicatorResult struct {
	values  [ResultCap]float64
	signals [ResultCap]Action
	rawLen  uint8
	sigLen  uint8
}

// NewIndicatorResult builds a result from the given value and signal slices.
// Entries beyond ResultCap are dropped.
func NewIndicatorResult(values []float64, signals []Action) IndicatorResult {
	var r IndicatorResult
	for i, v := range values {
		if i >= ResultCap {
			break
		}
		r.values[i] = v
		r.rawLen++
	}
	for i, s := range signals {
		if i >= ResultCap {
			break
		}
		r.signals[i] = s
		r.sigLen++
	}
	return r
}

// Value returns the raw value at index i, or NaN when i is out of range.
func (r IndicatorResult) Value(i int) float64 {
	if i < 0 || i >= int(r.rawLen) {
		return math.NaN()
	}
	return r.values[i]
}

// Values returns a copy of the populated raw values.
func (r IndicatorResult) Values() []float64 {
	out := make([]float64, r.rawLen)
	copy(out, r.values[:r.rawLen])
	return out
}

// Signal returns the signal at index i, or ActionNone when i is out of range.
func (r IndicatorResult) Signal(i int) Action {
	if i < 0 || i >= int(r.sigLen) {
		return ActionNone
	}
	return r.signals[i]
}

// Signals returns a copy of the populated signals.
func (r IndicatorResult) Signals() []Action {
	out := make([]Action, r.sigLen)
	copy(out, r.signals[:r.sigLen])
	return out
}

// Size returns (raw value count, signal count).
func (r IndicatorResult) Size() (uint8, uint8) {
	return r.rawLen, r.sigLen
}
