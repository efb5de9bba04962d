package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a single symbol and timeframe.
// TF is the timeframe duration in seconds (e.g., 60 = 1 minute).
// Candles are plain values: copying one is cheap and never shares state.
type Candle struct {
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"`      // timeframe in seconds
	TS      time.Time `json:"ts"`      // bucket start time (UTC, TF-aligned)
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Forming bool      `json:"forming"` // true if bucket is still open
}

// Accessor methods so indicator code can stay generic over any
// candle-shaped type instead of depending on this struct directly.

func (c Candle) GetOpen() float64   { return c.Open }
func (c Candle) GetHigh() float64   { return c.High }
func (c Candle) GetLow() float64    { return c.Low }
func (c Candle) GetClose() float64  { return c.Close }
func (c Candle) GetVolume() float64 { return c.Volume }

// Key returns "symbol:{TF}s", the per-series identity used for routing.
func (c Candle) Key() string {
	return c.Symbol + ":" + Itoa(c.TF) + "s"
}

// StreamKey returns the Redis stream key: "candle:{TF}s:{symbol}".
func (c Candle) StreamKey() string {
	return "candle:" + Itoa(c.TF) + "s:" + c.Symbol
}

// PubSubChannel returns the Redis PubSub channel: "pub:candle:{TF}s:{symbol}".
func (c Candle) PubSubChannel() string {
	return "pub:candle:" + Itoa(c.TF) + "s:" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
