package indicator

import (
	"encoding/json"

	"indicore/internal/model"
)

// SMMA configures a Smoothed Moving Average (Wilder-style smoothing):
// SMMA = (prev*(period-1) + price) / period. Output arity is (1,1).
type SMMA[T OHLCV] struct {
	Period int
}

// NewSMMA creates an SMMA configuration with the given period.
func NewSMMA[T OHLCV](period int) *SMMA[T] {
	return &SMMA[T]{Period: period}
}

func (s *SMMA[T]) Name() string   { return "SMMA" }
func (s *SMMA[T]) Validate() bool { return s.Period > 1 }

func (s *SMMA[T]) Set(name, value string) error {
	switch name {
	case "period":
		n, err := parseIntParam(s.Name(), name, value, 2)
		if err != nil {
			return err
		}
		s.Period = n
		return nil
	default:
		return errUnknownParam(s.Name(), name)
	}
}

func (s *SMMA[T]) Size() (uint8, uint8) { return 1, 1 }

func (s *SMMA[T]) Clone() *SMMA[T] {
	c := *s
	return &c
}

// Init starts the smoothed value at the seed close.
func (s *SMMA[T]) Init(seed T) (Instance[T], error) {
	if !s.Validate() {
		return nil, errInvalidConfig(s.Name())
	}
	price, err := seedClose(seed)
	if err != nil {
		return nil, err
	}
	return &smmaInstance[T]{
		period:  s.Period,
		current: price,
	}, nil
}

type smmaInstance[T OHLCV] struct {
	period   int
	current  float64
	prevDiff float64
}

func (s *smmaInstance[T]) Name() string         { return "SMMA" }
func (s *smmaInstance[T]) Size() (uint8, uint8) { return 1, 1 }

func (s *smmaInstance[T]) Next(candle T) model.IndicatorResult {
	price := candle.GetClose()

	// Wilder-style smoothing
	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)

	diff := price - s.current
	sig := crossSignal(s.prevDiff, diff)
	s.prevDiff = diff

	return model.NewIndicatorResult([]float64{s.current}, []model.Action{sig})
}

func (s *smmaInstance[T]) Over(inputs []T) []model.IndicatorResult {
	return runOver[T](s, inputs)
}

type smmaState struct {
	Period   int     `json:"period"`
	Current  float64 `json:"current"`
	PrevDiff float64 `json:"prev_diff"`
}

// Snapshot serializes the SMMA state for checkpoint persistence.
func (s *smmaInstance[T]) Snapshot() (json.RawMessage, error) {
	return json.Marshal(smmaState{
		Period:   s.period,
		Current:  s.current,
		PrevDiff: s.prevDiff,
	})
}

// RestoreFromSnapshot restores SMMA state from a checkpoint.
func (s *smmaInstance[T]) RestoreFromSnapshot(data json.RawMessage) error {
	var st smmaState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.period = st.Period
	s.current = st.Current
	s.prevDiff = st.PrevDiff
	return nil
}
