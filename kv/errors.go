package kv

import (
	"errors"
	"fmt"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/value"
)

// Every callback error satisfies errors.Is with exactly one of these.
var (
	// ErrIoFailure covers disk, permission and other engine failures.
	ErrIoFailure = engine.ErrIO
	// ErrCorrupt is returned when an environment is corrupt and the
	// recovery strategy is env.Error.
	ErrCorrupt          = engine.ErrCorrupt
	ErrInvalidPath      = env.ErrInvalidPath
	ErrStoreOpenFailure = env.ErrStoreOpenFailure
	// ErrInvalidKey is returned for an empty key on write or a key that is
	// not valid UTF-8.
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidValue    = value.ErrInvalidValue
	ErrUnexpectedValue = value.ErrUnexpectedValue
	ErrNotImplemented  = errors.New("not implemented")
	// ErrCanceled is returned for work submitted to a released database or
	// a closed service.
	ErrCanceled = errors.New("canceled")
	// ErrExhausted is returned by Enumerator.Next after the last entry.
	ErrExhausted = errors.New("enumerator exhausted")
)

var taxonomy = []error{
	ErrIoFailure,
	ErrCorrupt,
	ErrInvalidPath,
	ErrStoreOpenFailure,
	ErrInvalidKey,
	ErrInvalidValue,
	ErrUnexpectedValue,
	ErrNotImplemented,
	ErrCanceled,
	ErrExhausted,
}

// classify wraps an error outside the taxonomy as ErrIoFailure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrIoFailure, err)
}
