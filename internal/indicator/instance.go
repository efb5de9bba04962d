package indicator

import "indicore/internal/model"

// Instance is a running indicator: streaming state derived from a
// Config and a seed candle, advanced in place by every candle it
// processes. Once an Instance exists it never fails — numeric edge
// cases surface as NaN values in the result, not as errors.
//
// An Instance is a single-goroutine state machine. It holds no shared
// internals, so moving one between goroutines is safe as long as only
// one feeds it at a time.
type Instance[T OHLCV] interface {
	// Name returns the indicator kind that produced this instance.
	Name() string

	// Size returns the (raw, signal) arity of every result, matching
	// the originating Config's Size.
	Size() (uint8, uint8)

	// Next advances the state with one candle and returns its result.
	Next(candle T) model.IndicatorResult

	// Over advances the state over the whole input series, returning
	// one result per candle in input order.
	Over(inputs []T) []model.IndicatorResult
}

// runOver is the shared Over loop for concrete instances.
func runOver[T OHLCV](inst Instance[T], inputs []T) []model.IndicatorResult {
	out := make([]model.IndicatorResult, 0, len(inputs))
	for _, c := range inputs {
		out = append(out, inst.Next(c))
	}
	return out
}
