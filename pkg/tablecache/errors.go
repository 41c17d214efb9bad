package tablecache

import "errors"

var (
	// ErrNotFound is returned when a slot is empty or expired.
	ErrNotFound = errors.New("cache: slot empty or expired")

	// ErrUnknownSlot is returned for a slot the cache was not built with.
	ErrUnknownSlot = errors.New("cache: unknown slot")

	// ErrNilValue is returned when Set is given nil data, which would read back as empty.
	ErrNilValue = errors.New("cache: nil value")
)
