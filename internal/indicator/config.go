// Package indicator provides streaming technical indicator evaluation
// over candle data.
//
// Each indicator is split into a Config (tunable parameters, validated
// before use) and an Instance (running state, advanced one candle at a
// time). Statically-typed code works against Config and Instance
// directly with zero dispatch overhead; hosts that mix indicator kinds
// at runtime go through the type-erased ConfigDyn layer in dd.go.
package indicator

import "indicore/internal/model"

// OHLCV is the read-only candle shape indicators consume. Any host
// candle type with these accessors can drive an indicator.
type OHLCV interface {
	GetOpen() float64
	GetHigh() float64
	GetLow() float64
	GetClose() float64
	GetVolume() float64
}

// Config describes one indicator kind's parameters before it starts
// running. The type parameter C is the implementing type itself
// (e.g. *SMA[T]), so Clone returns the concrete type.
//
// Lifecycle: a Config is built and tuned via Set, checked with
// Validate, then consumed exactly once by Init. A Config is not reused
// after a successful Init; callers that still need it Clone first.
type Config[T OHLCV, C any] interface {
	// Name returns the indicator kind, e.g. "SMA".
	Name() string

	// Validate reports whether the current parameters are usable.
	// Pure: no side effects, callable any number of times.
	Validate() bool

	// Set updates one named parameter from its textual form. The value
	// is parsed and range-checked before any mutation; on error the
	// configuration is left unchanged and ErrInvalidParameter is
	// returned (wrapped with the offending name/value).
	Set(name, value string) error

	// Size returns the (raw value count, signal count) arity of every
	// result an Instance built from this configuration will produce.
	Size() (raw, signals uint8)

	// Clone returns an independent copy of the configuration.
	Clone() C

	// Init consumes the configuration and builds running state seeded
	// from the given candle. Returns ErrInvalidParameter when Validate
	// would return false, ErrIncompatibleSeed when this candle cannot
	// seed the state.
	Init(seed T) (Instance[T], error)
}

// Over evaluates cfg over an input series in one call. An empty input
// returns an empty (non-nil) slice without touching cfg. Otherwise cfg
// is consumed by Init with inputs[0] as the seed and the resulting
// instance is run over the entire series, the seed candle included:
// len(inputs) results in input order. An Init error is returned as-is
// with no partial results.
func Over[T OHLCV, C Config[T, C]](cfg C, inputs []T) ([]model.IndicatorResult, error) {
	if len(inputs) == 0 {
		return []model.IndicatorResult{}, nil
	}
	inst, err := cfg.Init(inputs[0])
	if err != nil {
		return nil, err
	}
	return inst.Over(inputs), nil
}
