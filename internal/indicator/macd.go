package indicator

import (
	"encoding/json"

	"indicore/internal/model"
)

// MACD configures Moving Average Convergence/Divergence: the difference
// of a fast and a slow EMA, plus a signal-line EMA over that difference.
// Output arity is (2,1): [macd line, signal line] and a line-cross
// signal.
type MACD[T OHLCV] struct {
	Fast   int
	Slow   int
	Signal int
}

// NewMACD creates a MACD configuration (typical: 12, 26, 9).
func NewMACD[T OHLCV](fast, slow, signal int) *MACD[T] {
	return &MACD[T]{Fast: fast, Slow: slow, Signal: signal}
}

func (m *MACD[T]) Name() string { return "MACD" }

// Validate also enforces the cross-field constraint Slow > Fast, which
// Set cannot check atomically per field.
func (m *MACD[T]) Validate() bool {
	return m.Fast > 1 && m.Slow > m.Fast && m.Signal > 0
}

func (m *MACD[T]) Set(name, value string) error {
	switch name {
	case "fast":
		n, err := parseIntParam(m.Name(), name, value, 2)
		if err != nil {
			return err
		}
		m.Fast = n
		return nil
	case "slow":
		n, err := parseIntParam(m.Name(), name, value, 2)
		if err != nil {
			return err
		}
		m.Slow = n
		return nil
	case "signal":
		n, err := parseIntParam(m.Name(), name, value, 1)
		if err != nil {
			return err
		}
		m.Signal = n
		return nil
	default:
		return errUnknownParam(m.Name(), name)
	}
}

func (m *MACD[T]) Size() (uint8, uint8) { return 2, 1 }

func (m *MACD[T]) Clone() *MACD[T] {
	c := *m
	return &c
}

// Init starts both EMAs at the seed close, so the MACD line (and the
// signal line over it) open at zero.
func (m *MACD[T]) Init(seed T) (Instance[T], error) {
	if !m.Validate() {
		return nil, errInvalidConfig(m.Name())
	}
	price, err := seedClose(seed)
	if err != nil {
		return nil, err
	}
	return &macdInstance[T]{
		kFast:   2.0 / float64(m.Fast+1),
		kSlow:   2.0 / float64(m.Slow+1),
		kSignal: 2.0 / float64(m.Signal+1),
		emaFast: price,
		emaSlow: price,
	}, nil
}

type macdInstance[T OHLCV] struct {
	kFast    float64
	kSlow    float64
	kSignal  float64
	emaFast  float64
	emaSlow  float64
	emaSig   float64
	prevDiff float64 // previous macd-minus-signal, for the cross signal
}

func (m *macdInstance[T]) Name() string         { return "MACD" }
func (m *macdInstance[T]) Size() (uint8, uint8) { return 2, 1 }

func (m *macdInstance[T]) Next(candle T) model.IndicatorResult {
	price := candle.GetClose()

	m.emaFast = (price * m.kFast) + (m.emaFast * (1 - m.kFast))
	m.emaSlow = (price * m.kSlow) + (m.emaSlow * (1 - m.kSlow))
	macd := m.emaFast - m.emaSlow
	m.emaSig = (macd * m.kSignal) + (m.emaSig * (1 - m.kSignal))

	diff := macd - m.emaSig
	sig := crossSignal(m.prevDiff, diff)
	m.prevDiff = diff

	return model.NewIndicatorResult(
		[]float64{macd, m.emaSig},
		[]model.Action{sig},
	)
}

func (m *macdInstance[T]) Over(inputs []T) []model.IndicatorResult {
	return runOver[T](m, inputs)
}

type macdState struct {
	KFast    float64 `json:"k_fast"`
	KSlow    float64 `json:"k_slow"`
	KSignal  float64 `json:"k_signal"`
	EMAFast  float64 `json:"ema_fast"`
	EMASlow  float64 `json:"ema_slow"`
	EMASig   float64 `json:"ema_sig"`
	PrevDiff float64 `json:"prev_diff"`
}

// Snapshot serializes the MACD state for checkpoint persistence.
func (m *macdInstance[T]) Snapshot() (json.RawMessage, error) {
	return json.Marshal(macdState{
		KFast:    m.kFast,
		KSlow:    m.kSlow,
		KSignal:  m.kSignal,
		EMAFast:  m.emaFast,
		EMASlow:  m.emaSlow,
		EMASig:   m.emaSig,
		PrevDiff: m.prevDiff,
	})
}

// RestoreFromSnapshot restores MACD state from a checkpoint.
func (m *macdInstance[T]) RestoreFromSnapshot(data json.RawMessage) error {
	var st macdState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	m.kFast = st.KFast
	m.kSlow = st.KSlow
	m.kSignal = st.KSignal
	m.emaFast = st.EMAFast
	m.emaSlow = st.EMASlow
	m.emaSig = st.EMASig
	m.prevDiff = st.PrevDiff
	return nil
}
