package indicator

import "errors"

var (
	// ErrInvalidParameter is returned by Set for an unknown name or an
	// unparsable/out-of-range value, and by Init when the configuration
	// would not pass Validate.
	ErrInvalidParameter = errors.New("invalid indicator parameter")

	// ErrIncompatibleSeed is returned by Init when the parameters cannot
	// be seeded from the supplied candle (e.g. a non-finite price).
	ErrIncompatibleSeed = errors.New("incompatible seed candle")
)
