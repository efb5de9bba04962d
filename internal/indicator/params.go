package indicator

import (
	"fmt"
	"math"
	"strconv"

	"indicore/internal/model"
)

// parseIntParam parses an integer parameter and enforces its lower bound
// before the caller mutates anything.
func parseIntParam(kind, name, value string, min int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: parameter %q: %q is not an integer: %w", kind, name, value, ErrInvalidParameter)
	}
	if n < min {
		return 0, fmt.Errorf("%s: parameter %q: %d is below minimum %d: %w", kind, name, n, min, ErrInvalidParameter)
	}
	return n, nil
}

// parseFloatParam parses a float parameter and enforces (min, max].
func parseFloatParam(kind, name, value string, min, max float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parameter %q: %q is not a number: %w", kind, name, value, ErrInvalidParameter)
	}
	if !(f > min && f <= max) {
		return 0, fmt.Errorf("%s: parameter %q: %v is outside (%v, %v]: %w", kind, name, f, min, max, ErrInvalidParameter)
	}
	return f, nil
}

func errUnknownParam(kind, name string) error {
	return fmt.Errorf("%s: unknown parameter %q: %w", kind, name, ErrInvalidParameter)
}

func errInvalidConfig(kind string) error {
	return fmt.Errorf("%s: configuration failed validation: %w", kind, ErrInvalidParameter)
}

// seedClose extracts the seed price, rejecting candles an indicator
// cannot start from.
func seedClose[T OHLCV](seed T) (float64, error) {
	price := seed.GetClose()
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("seed close %v is not finite: %w", price, ErrIncompatibleSeed)
	}
	return price, nil
}

// crossSignal maps a sign change of a price-minus-line difference to a
// trading signal. A flat previous difference (including the seeded zero
// state) never fires.
func crossSignal(prevDiff, diff float64) model.Action {
	if prevDiff < 0 && diff > 0 {
		return model.ActionBuy
	}
	if prevDiff > 0 && diff < 0 {
		return model.ActionSell
	}
	return model.ActionNone
}
