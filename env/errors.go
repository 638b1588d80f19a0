package env

import "errors"

var (
	// ErrInvalidPath is returned for an empty path or one that names
	// something other than a directory.
	ErrInvalidPath = errors.New("invalid environment path")
	// ErrStoreOpenFailure is returned when an environment opened but the
	// named store could not be opened or created in it.
	ErrStoreOpenFailure = errors.New("failed to open store")
)
