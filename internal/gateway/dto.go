package gateway

import "encoding/json"

// TFInfo is the REST response type for /api/tfs.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// CandleOut is the REST response type for /api/candles. Field tags match
// the candle JSON stored on the Redis streams.
type CandleOut struct {
	Symbol  string  `json:"symbol"`
	TF      int     `json:"tf"`
	TS      string  `json:"ts"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"volume"`
	Forming bool    `json:"forming,omitempty"`
}

// IndPoint is the REST response type for /api/indicators/history. An
// indicator emits one or more values per candle plus signal actions,
// carried through verbatim from the stored update JSON.
type IndPoint struct {
	TS      string          `json:"ts"`
	Values  []float64       `json:"values"`
	Signals json.RawMessage `json:"signals,omitempty"`
}
