package indicator

import "indicore/internal/model"

// ConfigDyn is the object-safe view of a Config, parameterized only by
// the candle type. It lets a host hold a mixed collection of indicator
// kinds — e.g. built from a text-driven strategy description — without
// knowing any concrete type.
//
// Name, Validate, Set and Size delegate directly with the contracts of
// Config. Init and Over differ in one way: the static calls consume the
// configuration by value, but a ConfigDyn is only borrowed, so the
// adapter clones the wrapped configuration before delegating. That copy
// is the single deliberate cost at the erasure boundary; the wrapped
// configuration's observable state is never changed by Init or Over.
type ConfigDyn[T OHLCV] interface {
	Name() string
	Validate() bool
	Set(name, value string) error
	Size() (uint8, uint8)
	Init(seed T) (Instance[T], error)
	Over(inputs []T) ([]model.IndicatorResult, error)
}

// Erase wraps any concrete Config in a ConfigDyn. This is the whole
// bridge: one generic adapter instead of per-indicator forwarding code.
// On the instance side no adapter is needed at all — every concrete
// instance already satisfies Instance[T] structurally, so the value
// returned by Init is the boxed instance itself and its Next/Over run
// with plain interface dispatch, no duplication.
func Erase[T OHLCV, C Config[T, C]](cfg C) ConfigDyn[T] {
	return &erased[T, C]{cfg: cfg}
}

type erased[T OHLCV, C Config[T, C]] struct {
	cfg C
}

func (e *erased[T, C]) Name() string                 { return e.cfg.Name() }
func (e *erased[T, C]) Validate() bool               { return e.cfg.Validate() }
func (e *erased[T, C]) Set(name, value string) error { return e.cfg.Set(name, value) }
func (e *erased[T, C]) Size() (uint8, uint8)         { return e.cfg.Size() }

func (e *erased[T, C]) Init(seed T) (Instance[T], error) {
	return e.cfg.Clone().Init(seed)
}

func (e *erased[T, C]) Over(inputs []T) ([]model.IndicatorResult, error) {
	return Over[T, C](e.cfg.Clone(), inputs)
}
