package model

import (
	"encoding/json"
	"time"
)

// IndicatorUpdate is the transport envelope for one computed indicator step.
// It flattens an IndicatorResult for the wire; the embedded values and
// signals are carried verbatim, never recomputed or reordered.
type IndicatorUpdate struct {
	Name    string    `json:"name"` // e.g. "SMA_20", "RSI_14"
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"` // timeframe in seconds
	TS      time.Time `json:"ts"` // candle timestamp that produced this step
	Values  []float64 `json:"values"`
	Signals []Action  `json:"signals"`
	Live    bool      `json:"live"` // true for values from forming candles
}

// NewIndicatorUpdate flattens res into an envelope keyed by the candle that
// produced it.
func NewIndicatorUpdate(name string, c Candle, res IndicatorResult) IndicatorUpdate {
	return IndicatorUpdate{
		Name:    name,
		Symbol:  c.Symbol,
		TF:      c.TF,
		TS:      c.TS,
		Values:  res.Values(),
		Signals: res.Signals(),
		Live:    c.Forming,
	}
}

// StreamKey returns the Redis stream key: "ind:{name}:{TF}s:{symbol}".
func (u *IndicatorUpdate) StreamKey() string {
	return "ind:" + u.Name + ":" + Itoa(u.TF) + "s:" + u.Symbol
}

// PubSubChannel returns the Redis PubSub channel:
// "pub:ind:{name}:{TF}s:{symbol}".
func (u *IndicatorUpdate) PubSubChannel() string {
	return "pub:ind:" + u.Name + ":" + Itoa(u.TF) + "s:" + u.Symbol
}

// JSON returns the JSON-encoded update.
func (u *IndicatorUpdate) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
