package catalog

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("catalog: not found")

	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("catalog: duplicate")
)
