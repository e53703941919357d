// Package orchestrator decides when queued sound events may actually sound.
//
// Candidates arrive in bursts per invocation and wait in a FIFO queue. A
// periodic driver calls Tick, which evicts expired niches and admits every
// queued event whose frequency band does not collide with a currently-active
// niche. Blocked events stay queued in their original relative order;
// liveness comes from re-evaluation as niches expire, never from per-request
// timers.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hibikido/hibikido/internal/domain/model"
	"github.com/hibikido/hibikido/pkg/logger"
	"github.com/hibikido/hibikido/pkg/metrics"
)

// Default scheduling configuration constants.
const (
	defaultOverlapThreshold = 0.2
	defaultTickInterval     = 100 * time.Millisecond
)

// ManifestFunc receives each admitted event exactly once, at admission time.
// It runs synchronously inside the scheduler's critical section: it must not
// block and must not call back into Enqueue or Tick.
type ManifestFunc func(m model.Manifestation) error

// queueEntry wraps a pending event with its arrival time. Owned exclusively
// by the queue until admitted or dropped.
type queueEntry struct {
	event      model.SoundEvent
	enqueuedAt time.Time
}

// Stats is the diagnostic snapshot exposed to callers.
type Stats struct {
	ActiveNiches     int     `json:"active_niches"`
	QueuedRequests   int     `json:"queued_requests"`
	OverlapThreshold float64 `json:"overlap_threshold"`
	TickIntervalSecs float64 `json:"tick_interval"`
}

// Orchestrator owns the manifestation queue and the niche registry. A single
// mutex guards both; Enqueue may be called from any goroutine while a
// separate driver goroutine ticks.
type Orchestrator struct {
	mu sync.Mutex

	overlapThreshold float64
	tickInterval     time.Duration

	queue  []queueEntry
	niches []model.Niche

	manifest ManifestFunc
	clock    func() time.Time
	log      logger.Logger
}

// New constructs an Orchestrator with default configuration.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		overlapThreshold: defaultOverlapThreshold,
		tickInterval:     defaultTickInterval,
		clock:            time.Now,
		log:              logger.Get().Named("orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.log.Info(context.Background(), "orchestrator initialized",
		logger.Float64("overlapThreshold", o.overlapThreshold),
		logger.Duration("tickInterval", o.tickInterval),
	)
	return o
}

// SetManifestCallback registers the admission callback. Events drain only
// while a callback is set.
func (o *Orchestrator) SetManifestCallback(fn ManifestFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manifest = fn
}

// TickInterval returns the cadence the external driver should tick at.
func (o *Orchestrator) TickInterval() time.Duration {
	return o.tickInterval
}

// Enqueue appends an event to the back of the manifestation queue. It
// rejects structurally unusable events with ErrMalformedEvent; a rejected
// event never reaches the collision logic. The queue is unbounded.
func (o *Orchestrator) Enqueue(e model.SoundEvent) error {
	if err := e.Validate(); err != nil {
		metrics.RecordEventRejected()
		o.log.Warn(context.Background(), "rejected malformed event",
			logger.String("soundID", e.SoundID),
			logger.Error(err),
		)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.queue = append(o.queue, queueEntry{event: e, enqueuedAt: o.clock()})
	metrics.RecordEventEnqueued()
	metrics.UpdateQueueDepth(len(o.queue))

	o.log.Debug(context.Background(), "queued manifestation",
		logger.String("soundID", e.SoundID),
		logger.Float64("freqLow", e.FreqLow),
		logger.Float64("freqHigh", e.FreqHigh),
		logger.Int("queueDepth", len(o.queue)),
	)
	return nil
}

// Tick performs one eviction+drain step at the given time and returns the
// number of manifestations emitted. It never blocks on I/O and always
// returns promptly; per-entry failures are logged and isolated.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) int {
	start := time.Now()
	defer func() {
		metrics.RecordTickDuration(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.evictExpired(ctx, now)
	return o.drain(ctx, now)
}

// Stats returns a consistent snapshot of scheduler state.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		ActiveNiches:     len(o.niches),
		QueuedRequests:   len(o.queue),
		OverlapThreshold: o.overlapThreshold,
		TickIntervalSecs: o.tickInterval.Seconds(),
	}
}

// evictExpired removes every niche whose end time has passed. Runs before
// collision testing so freed capacity is immediately available. Caller holds
// the lock.
func (o *Orchestrator) evictExpired(ctx context.Context, now time.Time) {
	kept := o.niches[:0]
	for _, n := range o.niches {
		if n.Active(now) {
			kept = append(kept, n)
		}
	}

	evicted := len(o.niches) - len(kept)
	o.niches = kept
	if evicted > 0 {
		metrics.RecordNicheEvictions(evicted)
		o.log.Debug(ctx, "evicted expired niches", logger.Int("count", evicted))
	}
	metrics.UpdateActiveNiches(len(o.niches))
}

// drain walks the queue once, front to back, admitting every entry that does
// not collide with a currently-active niche. Admissions register their niche
// immediately, so an entry admitted earlier in the pass blocks a conflicting
// entry later in the same pass; a freed slot is only observed on the next
// tick. Caller holds the lock.
func (o *Orchestrator) drain(ctx context.Context, now time.Time) int {
	if len(o.queue) == 0 || o.manifest == nil {
		return 0
	}

	remaining := o.queue[:0]
	sent := 0

	for _, entry := range o.queue {
		e := entry.event

		// Entries are validated at enqueue, but a drop here keeps corrupt
		// input from wedging the queue forever.
		if err := e.Validate(); err != nil {
			metrics.RecordEventDropped()
			o.log.Error(ctx, "dropping malformed queued event",
				logger.String("soundID", e.SoundID),
				logger.Error(err),
			)
			continue
		}

		if _, conflict := o.findConflict(e.FreqLow, e.FreqHigh, now, o.niches); conflict {
			remaining = append(remaining, entry)
			continue
		}

		o.niches = append(o.niches, model.Niche{
			SoundID:   e.SoundID,
			StartTime: now,
			EndTime:   now.Add(e.Duration),
			FreqLow:   e.FreqLow,
			FreqHigh:  e.FreqHigh,
		})

		if err := o.manifest(model.ManifestationOf(e)); err != nil {
			// Admission stands: the niche stays registered and the entry is
			// consumed. Delivery is at-most-once.
			metrics.RecordManifestError()
			o.log.Error(ctx, "manifest callback failed",
				logger.String("soundID", e.SoundID),
				logger.Error(err),
			)
		}
		metrics.RecordManifestation()
		metrics.RecordManifestLag(now.Sub(entry.enqueuedAt).Seconds())
		sent++

		o.log.Debug(ctx, "manifested",
			logger.String("soundID", e.SoundID),
			logger.Float64("freqLow", e.FreqLow),
			logger.Float64("freqHigh", e.FreqHigh),
			logger.Duration("queuedFor", now.Sub(entry.enqueuedAt)),
		)
	}

	o.queue = remaining
	metrics.UpdateQueueDepth(len(o.queue))
	metrics.UpdateActiveNiches(len(o.niches))

	if sent > 0 {
		o.log.Debug(ctx, "processed queue",
			logger.Int("manifested", sent),
			logger.Int("stillQueued", len(o.queue)),
		)
	}
	return sent
}
