package service

import (
	"time"

	"github.com/hibikido/hibikido/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the catalog database path.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithIndexPath sets the vector index snapshot path.
func WithIndexPath(path string) Option {
	return func(s *Service) {
		s.indexPath = path
	}
}

// WithEmbedder picks the embedder implementation ("hash" or "openai") and
// the model name used by the OpenAI embedder.
func WithEmbedder(name, model string) Option {
	return func(s *Service) {
		if name != "" {
			s.embedderName = name
		}
		if model != "" {
			s.embeddingModel = model
		}
	}
}

// WithOverlapThreshold sets the scheduler's band overlap threshold.
func WithOverlapThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.overlapThreshold = t
		}
	}
}

// WithTickInterval sets the scheduler pass cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithTopK caps how many search hits an invocation enqueues.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithEventDefaults sets the frequency band and duration used when a
// catalog row carries none.
func WithEventDefaults(freqLow, freqHigh float64, duration time.Duration) Option {
	return func(s *Service) {
		if freqLow > 0 {
			s.defaultFreqLow = freqLow
		}
		if freqHigh > 0 {
			s.defaultFreqHigh = freqHigh
		}
		if duration > 0 {
			s.defaultDuration = duration
		}
	}
}

// WithManifestBuffer sets the fan-out channel capacity.
func WithManifestBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.manifestBuffer = n
		}
	}
}

// WithMaxImportErrors caps per-row error reporting on CSV imports.
func WithMaxImportErrors(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxImportErrors = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}
