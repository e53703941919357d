package service

import "errors"

var (
	// ErrEmptyInvocation is returned when a phrase reduces to nothing
	// after normalization.
	ErrEmptyInvocation = errors.New("empty invocation text")

	// ErrNoEmbeddingText is returned when a catalog add has no meaningful
	// text to index.
	ErrNoEmbeddingText = errors.New("no meaningful text to embed")
)
