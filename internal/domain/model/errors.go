package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrMalformedEvent = errors.New("malformed sound event")
)
