package indicator

import (
	"encoding/json"

	"indicore/internal/model"
)

// SMA configures a Simple Moving Average over the close price.
// Output arity is (1,1): the average, plus a price/average cross signal.
type SMA[T OHLCV] struct {
	Period int
}

// NewSMA creates an SMA configuration with the given period.
func NewSMA[T OHLCV](period int) *SMA[T] {
	return &SMA[T]{Period: period}
}

func (s *SMA[T]) Name() string   { return "SMA" }
func (s *SMA[T]) Validate() bool { return s.Period > 1 }

func (s *SMA[T]) Set(name, value string) error {
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

func (s *SMA[T]) Size() (uint8, uint8) { return 1, 1 }

func (s *SMA[T]) Clone() *SMA[T] {
	c := *s
	return &c
}

// Init seeds the rolling window entirely with the seed close, so the
// instance produces a defined value from the very first candle.
func (s *SMA[T]) Init(seed T) (Instance[T], error) {
	if !s.Validate() {
		return nil, errInvalidConfig(s.Name())
	}
	price, err := seedClose(seed)
	if err != nil {
		return nil, err
	}
	buf := make([]float64, s.Period)
	for i := range buf {
		buf[i] = price
	}
	return &smaInstance[T]{
		period: s.Period,
		buf:    buf,
		sum:    price * float64(s.Period),
	}, nil
}

// smaInstance uses a preallocated circular buffer for a zero-allocation
// hot path.
type smaInstance[T OHLCV] struct {
	period   int
	buf      []float64
	idx      int // current write position
	sum      float64
	prevDiff float64 // previous close-minus-average, for the cross signal
}

func (s *smaInstance[T]) Name() string         { return "SMA" }
func (s *smaInstance[T]) Size() (uint8, uint8) { return 1, 1 }

func (s *smaInstance[T]) Next(candle T) model.IndicatorResult {
	price := candle.GetClose()

	s.sum -= s.buf[s.idx]
	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period

	avg := s.sum / float64(s.period)
	diff := price - avg
	sig := crossSignal(s.prevDiff, diff)
	s.prevDiff = diff

	return model.NewIndicatorResult([]float64{avg}, []model.Action{sig})
}

func (s *smaInstance[T]) Over(inputs []T) []model.IndicatorResult {
	return runOver[T](s, inputs)
}

type smaState struct {
	Period   int       `json:"period"`
	Buf      []float64 `json:"buf"`
	Idx      int       `json:"idx"`
	Sum      float64   `json:"sum"`
	PrevDiff float64   `json:"prev_diff"`
}

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *smaInstance[T]) Snapshot() (json.RawMessage, error) {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return json.Marshal(smaState{
		Period:   s.period,
		Buf:      bufCopy,
		Idx:      s.idx,
		Sum:      s.sum,
		PrevDiff: s.prevDiff,
	})
}

// RestoreFromSnapshot restores SMA state from a checkpoint.
func (s *smaInstance[T]) RestoreFromSnapshot(data json.RawMessage) error {
	var st smaState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.period = st.Period
	s.idx = st.Idx
	s.sum = st.Sum
	s.prevDiff = st.PrevDiff
	if len(st.Buf) > 0 {
		s.buf = make([]float64, len(st.Buf))
		copy(s.buf, st.Buf)
	} else {
		s.buf = make([]float64, st.Period)
	}
	return nil
}
