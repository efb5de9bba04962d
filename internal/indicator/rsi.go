package indicator

import (
	"encoding/json"

	"indicore/internal/model"
)

// RSI configures a Relative Strength Index using Wilder's smoothing.
// Zone is the over/under band width as a fraction in (0, 0.5]: with
// zone=0.3 the oversold band is RSI<=30 and the overbought band is
// RSI>=70. Output arity is (1,1); the signal fires once on entering a
// band, not on every candle inside it.
type RSI[T OHLCV] struct {
	Period int
	Zone   float64
}

// NewRSI creates an RSI configuration with the given period and the
// default 0.3 zone.
func NewRSI[T OHLCV](period int) *RSI[T] {
	return &RSI[T]{Period: period, Zone: 0.3}
}

func (r *RSI[T]) Name() string { return "RSI" }

func (r *RSI[T]) Validate() bool {
	return r.Period > 1 && r.Zone > 0 && r.Zone <= 0.5
}

func (r *RSI[T]) Set(name, value string) error {
	switch name {
	case "period":
		n, err := parseIntParam(r.Name(), name, value, 2)
		if err != nil {
			return err
		}
		r.Period = n
		return nil
	case "zone":
		f, err := parseFloatParam(r.Name(), name, value, 0, 0.5)
		if err != nil {
			return err
		}
		r.Zone = f
		return nil
	default:
		return errUnknownParam(r.Name(), name)
	}
}

func (r *RSI[T]) Size() (uint8, uint8) { return 1, 1 }

func (r *RSI[T]) Clone() *RSI[T] {
	c := *r
	return &c
}

// Init records the seed close as the previous price; gain/loss averages
// start at zero and converge under Wilder smoothing.
func (r *RSI[T]) Init(seed T) (Instance[T], error) {
	if !r.Validate() {
		return nil, errInvalidConfig(r.Name())
	}
	price, err := seedClose(seed)
	if err != nil {
		return nil, err
	}
	return &rsiInstance[T]{
		period:    r.Period,
		zone:      r.Zone,
		prevClose: price,
	}, nil
}

type rsiInstance[T OHLCV] struct {
	period    int
	zone      float64
	prevClose float64
	avgGain   float64
	avgLoss   float64
	inUpper   bool
	inLower   bool
}

func (r *rsiInstance[T]) Name() string         { return "RSI" }
func (r *rsiInstance[T]) Size() (uint8, uint8) { return 1, 1 }

func (r *rsiInstance[T]) Next(candle T) model.IndicatorResult {
	price := candle.GetClose()
	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	// Wilder's smoothing: avg = (prevAvg*(period-1) + x) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p

	var value float64
	switch {
	case r.avgLoss == 0 && r.avgGain == 0:
		value = 50.0 // flat series — neutral, not overbought
	case r.avgLoss == 0:
		value = 100.0
	default:
		rs := r.avgGain / r.avgLoss
		value = 100.0 - (100.0 / (1.0 + rs))
	}

	upper := 100.0 * (1.0 - r.zone)
	lower := 100.0 * r.zone
	sig := model.ActionNone
	if value >= upper {
		if !r.inUpper {
			sig = model.ActionSell
		}
		r.inUpper, r.inLower = true, false
	} else if value <= lower {
		if !r.inLower {
			sig = model.ActionBuy
		}
		r.inUpper, r.inLower = false, true
	} else {
		r.inUpper, r.inLower = false, false
	}

	return model.NewIndicatorResult([]float64{value}, []model.Action{sig})
}

func (r *rsiInstance[T]) Over(inputs []T) []model.IndicatorResult {
	return runOver[T](r, inputs)
}

type rsiState struct {
	Period    int     `json:"period"`
	Zone      float64 `json:"zone"`
	PrevClose float64 `json:"prev_close"`
	AvgGain   float64 `json:"avg_gain"`
	AvgLoss   float64 `json:"avg_loss"`
	InUpper   bool    `json:"in_upper"`
	InLower   bool    `json:"in_lower"`
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *rsiInstance[T]) Snapshot() (json.RawMessage, error) {
	return json.Marshal(rsiState{
		Period:    r.period,
		Zone:      r.zone,
		PrevClose: r.prevClose,
		AvgGain:   r.avgGain,
		AvgLoss:   r.avgLoss,
		InUpper:   r.inUpper,
		InLower:   r.inLower,
	})
}

// RestoreFromSnapshot restores RSI state from a checkpoint.
func (r *rsiInstance[T]) RestoreFromSnapshot(data json.RawMessage) error {
	var st rsiState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	r.period = st.Period
	r.zone = st.Zone
	r.prevClose = st.PrevClose
	r.avgGain = st.AvgGain
	r.avgLoss = st.AvgLoss
	r.inUpper = st.InUpper
	r.inLower = st.InLower
	return nil
}
