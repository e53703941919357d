package orchestrator

import (
	"math"
	"time"

	"github.com/hibikido/hibikido/internal/domain/model"
	"github.com/hibikido/hibikido/pkg/metrics"
)

// log2Band converts a frequency band to base-2 log space. Bounds are clamped
// to a minimum of 1 Hz so non-positive input stays in the domain of log2;
// the resulting zero-width band then reads as non-conflicting.
func log2Band(low, high float64) (float64, float64) {
	return math.Log2(math.Max(low, 1)), math.Log2(math.Max(high, 1))
}

// overlapRatio returns the share of the smaller band's log-width covered by
// the overlap of the two bands, or 0 when they do not overlap or either band
// is degenerate. Measuring against the smaller band keeps a narrow candidate
// from being penalized for sitting next to a very wide active niche.
func overlapRatio(aLow, aHigh, bLow, bHigh float64) float64 {
	al, ah := log2Band(aLow, aHigh)
	bl, bh := log2Band(bLow, bHigh)

	overlapStart := math.Max(al, bl)
	overlapEnd := math.Min(ah, bh)
	if overlapStart >= overlapEnd {
		return 0
	}

	smaller := math.Min(ah-al, bh-bl)
	if smaller <= 0 {
		return 0
	}
	return (overlapEnd - overlapStart) / smaller
}

// findConflict tests the candidate band against every niche still sounding
// at now. It returns the earliest end time among conflicting niches - the
// moment the first conflict will clear - or false when the candidate is
// free. A band conflicts only when its overlap ratio strictly exceeds the
// threshold. Caller holds the lock.
func (o *Orchestrator) findConflict(freqLow, freqHigh float64, now time.Time, niches []model.Niche) (time.Time, bool) {
	var earliest time.Time
	found := false

	for _, n := range niches {
		if !n.Active(now) {
			continue
		}
		metrics.RecordCollisionCheck()
		if overlapRatio(freqLow, freqHigh, n.FreqLow, n.FreqHigh) <= o.overlapThreshold {
			continue
		}
		metrics.RecordCollisionFound()
		if !found || n.EndTime.Before(earliest) {
			earliest = n.EndTime
			found = true
		}
	}
	return earliest, found
}
