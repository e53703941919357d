package index

import "github.com/hibikido/hibikido/pkg/logger"

// Option configures an Index.
type Option func(*Index)

// WithEmbedder swaps the embedder. Defaults to the offline hashing embedder.
func WithEmbedder(e Embedder) Option {
	return func(i *Index) {
		if e != nil {
			i.embedder = e
		}
	}
}

// WithSnapshotPath enables gob snapshot persistence at path. Empty disables
// persistence.
func WithSnapshotPath(path string) Option {
	return func(i *Index) {
		i.path = path
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(i *Index) {
		if log != nil {
			i.log = log
		}
	}
}
