package indicator

import (
	"encoding/json"

	"indicore/internal/model"
)

// EMA configures an Exponential Moving Average over the close price.
// O(1) per step — no window storage needed. Output arity is (1,1).
type EMA[T OHLCV] struct {
	Period int
}

// NewEMA creates an EMA configuration with the given period.
func NewEMA[T OHLCV](period int) *EMA[T] {
	return &EMA[T]{Period: period}
}

func (e *EMA[T]) Name() string   { return "EMA" }
func (e *EMA[T]) Validate() bool { return e.Period > 1 }

func (e *EMA[T]) Set(name, value string) error {
	switch name {
	case "period":
		n, err := parseIntParam(e.Name(), name, value, 2)
		if err != nil {
			return err
		}
		e.Period = n
		return nil
	default:
		return errUnknownParam(e.Name(), name)
	}
}

func (e *EMA[T]) Size() (uint8, uint8) { return 1, 1 }

func (e *EMA[T]) Clone() *EMA[T] {
	c := *e
	return &c
}

// Init starts the running average at the seed close.
func (e *EMA[T]) Init(seed T) (Instance[T], error) {
	if !e.Validate() {
		return nil, errInvalidConfig(e.Name())
	}
	price, err := seedClose(seed)
	if err != nil {
		return nil, err
	}
	return &emaInstance[T]{
		period:     e.Period,
		multiplier: 2.0 / float64(e.Period+1),
		current:    price,
	}, nil
}

type emaInstance[T OHLCV] struct {
	period     int
	multiplier float64
	current    float64
	prevDiff   float64
}

func (e *emaInstance[T]) Name() string         { return "EMA" }
func (e *emaInstance[T]) Size() (uint8, uint8) { return 1, 1 }

func (e *emaInstance[T]) Next(candle T) model.IndicatorResult {
	price := candle.GetClose()

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))

	diff := price - e.current
	sig := crossSignal(e.prevDiff, diff)
	e.prevDiff = diff

	return model.NewIndicatorResult([]float64{e.current}, []model.Action{sig})
}

func (e *emaInstance[T]) Over(inputs []T) []model.IndicatorResult {
	return runOver[T](e, inputs)
}

type emaState struct {
	Period     int     `json:"period"`
	Multiplier float64 `json:"multiplier"`
	Current    float64 `json:"current"`
	PrevDiff   float64 `json:"prev_diff"`
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *emaInstance[T]) Snapshot() (json.RawMessage, error) {
	return json.Marshal(emaState{
		Period:     e.period,
		Multiplier: e.multiplier,
		Current:    e.current,
		PrevDiff:   e.prevDiff,
	})
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *emaInstance[T]) RestoreFromSnapshot(data json.RawMessage) error {
	var st emaState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	e.period = st.Period
	e.multiplier = st.Multiplier
	e.current = st.Current
	e.prevDiff = st.PrevDiff
	return nil
}
