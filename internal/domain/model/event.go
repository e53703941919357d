// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"
)

// SoundEvent is a candidate manifestation request produced by an invocation.
// Immutable once created: enqueued once, consumed exactly once.
type SoundEvent struct {
	SequenceIndex  int     // position within the invocation batch, for output ordering
	CollectionKind string  // origin category, e.g. "segments" or "presets"
	Score          float64 // similarity score, passed through untouched
	SourcePath     string
	Description    string
	WindowStart    float64
	WindowEnd      float64
	ParametersBlob string

	SoundID  string        // diagnostics only; need not be globally unique
	FreqLow  float64       // Hz
	FreqHigh float64       // Hz
	Duration time.Duration // intended playback length once admitted
}

// Validate reports whether the event is structurally usable by the
// scheduler. Degenerate frequency bands (zero width, inverted, non-positive
// bounds) are allowed - the collision test treats them as non-conflicting -
// but non-finite numbers and non-positive durations make an event
// unscheduleable and are rejected.
func (e SoundEvent) Validate() error {
	if math.IsNaN(e.FreqLow) || math.IsInf(e.FreqLow, 0) {
		return fmt.Errorf("%w: freq_low is not finite", ErrMalformedEvent)
	}
	if math.IsNaN(e.FreqHigh) || math.IsInf(e.FreqHigh, 0) {
		return fmt.Errorf("%w: freq_high is not finite", ErrMalformedEvent)
	}
	if math.IsNaN(e.Score) || math.IsInf(e.Score, 0) {
		return fmt.Errorf("%w: score is not finite", ErrMalformedEvent)
	}
	if e.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrMalformedEvent, e.Duration)
	}
	return nil
}

// Niche is an admitted, currently-active sound's time-and-frequency claim.
// While registered, StartTime <= EndTime.
type Niche struct {
	SoundID   string
	StartTime time.Time
	EndTime   time.Time
	FreqLow   float64
	FreqHigh  float64
}

// Active reports whether the niche is still sounding at now.
func (n Niche) Active(now time.Time) bool {
	return n.EndTime.After(now)
}

// Manifestation is the payload delivered to the manifest callback exactly
// once per admitted SoundEvent, at admission time.
type Manifestation struct {
	SequenceIndex  int     `json:"index"`
	CollectionKind string  `json:"collection"`
	Score          float64 `json:"score"`
	SourcePath     string  `json:"path"`
	Description    string  `json:"description"`
	WindowStart    float64 `json:"start"`
	WindowEnd      float64 `json:"end"`
	ParametersBlob string  `json:"parameters"`
}

// ManifestationOf builds the callback payload from an admitted event.
func ManifestationOf(e SoundEvent) Manifestation {
	return Manifestation{
		SequenceIndex:  e.SequenceIndex,
		CollectionKind: e.CollectionKind,
		Score:          e.Score,
		SourcePath:     e.SourcePath,
		Description:    e.Description,
		WindowStart:    e.WindowStart,
		WindowEnd:      e.WindowEnd,
		ParametersBlob: e.ParametersBlob,
	}
}
