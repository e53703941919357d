package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibikido/hibikido/internal/domain/model"
	orchestrator "github.com/hibikido/hibikido/internal/domain/orchestrator"
	"github.com/hibikido/hibikido/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func event(id string, low, high float64, duration time.Duration) model.SoundEvent {
	return model.SoundEvent{
		CollectionKind: "segments",
		Score:          0.9,
		SourcePath:     id + ".wav",
		Description:    id,
		SoundID:        id,
		FreqLow:        low,
		FreqHigh:       high,
		Duration:       duration,
	}
}

// collector records manifestations in emission order.
type collector struct {
	mu   sync.Mutex
	seen []model.Manifestation
}

func (c *collector) manifest(m model.Manifestation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, m)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestOrchestrator_FIFOAdmission(t *testing.T) {
	Convey("Given three non-conflicting events enqueued in order", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.2),
			orchestrator.WithClock(func() time.Time { return now }),
		)
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		for i, bands := range [][2]float64{{50, 300}, {800, 1200}, {4000, 8000}} {
			e := event(fmt.Sprintf("e%d", i), bands[0], bands[1], time.Second)
			e.SequenceIndex = i
			So(o.Enqueue(e), ShouldBeNil)
		}

		Convey("When a single tick runs", func() {
			sent := o.Tick(context.Background(), now)

			Convey("Then all three manifest in queue order", func() {
				So(sent, ShouldEqual, 3)
				So(c.len(), ShouldEqual, 3)
				So(c.seen[0].SequenceIndex, ShouldEqual, 0)
				So(c.seen[1].SequenceIndex, ShouldEqual, 1)
				So(c.seen[2].SequenceIndex, ShouldEqual, 2)
			})

			Convey("Then all three niches are active", func() {
				stats := o.Stats()
				So(stats.ActiveNiches, ShouldEqual, 3)
				So(stats.QueuedRequests, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_DeferredAdmission(t *testing.T) {
	Convey("Given an active niche and an overlapping candidate", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.2),
			orchestrator.WithClock(func() time.Time { return now }),
		)
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("first", 1000, 2000, 2*time.Second)), ShouldBeNil)
		So(o.Enqueue(event("second", 1500, 2500, time.Second)), ShouldBeNil)

		Convey("When the first tick runs", func() {
			sent := o.Tick(context.Background(), now)

			Convey("Then only the first event manifests", func() {
				So(sent, ShouldEqual, 1)
				So(c.seen[0].Description, ShouldEqual, "first")
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
				So(o.Stats().ActiveNiches, ShouldEqual, 1)
			})

			Convey("And ticking again while the niche is active changes nothing", func() {
				So(o.Tick(context.Background(), now.Add(500*time.Millisecond)), ShouldEqual, 0)
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
			})

			Convey("And ticking after the niche expires admits the second", func() {
				sent := o.Tick(context.Background(), now.Add(2100*time.Millisecond))
				So(sent, ShouldEqual, 1)
				So(c.len(), ShouldEqual, 2)
				So(c.seen[1].Description, ShouldEqual, "second")
				So(o.Stats().QueuedRequests, ShouldEqual, 0)
				So(o.Stats().ActiveNiches, ShouldEqual, 1)
			})
		})
	})
}

func TestOrchestrator_NoHeadOfLineBlocking(t *testing.T) {
	Convey("Given a blocked entry ahead of a free entry", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.2),
			orchestrator.WithClock(func() time.Time { return now }),
		)
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("occupant", 1000, 2000, 5*time.Second)), ShouldBeNil)
		So(o.Tick(context.Background(), now), ShouldEqual, 1)

		So(o.Enqueue(event("blocked", 1100, 1900, time.Second)), ShouldBeNil)
		So(o.Enqueue(event("free", 8000, 16000, time.Second)), ShouldBeNil)

		Convey("When a tick runs", func() {
			sent := o.Tick(context.Background(), now.Add(100*time.Millisecond))

			Convey("Then the free entry behind the blocked one still manifests", func() {
				So(sent, ShouldEqual, 1)
				So(c.seen[len(c.seen)-1].Description, ShouldEqual, "free")
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
			})
		})
	})
}

func TestOrchestrator_SameTickAdmissionBlocks(t *testing.T) {
	Convey("Given two mutually-conflicting entries and no active niches", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.2),
			orchestrator.WithClock(func() time.Time { return now }),
		)
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("a", 1000, 2000, time.Second)), ShouldBeNil)
		So(o.Enqueue(event("b", 1000, 2000, time.Second)), ShouldBeNil)

		Convey("When a single tick runs", func() {
			sent := o.Tick(context.Background(), now)

			Convey("Then a's fresh niche blocks b within the same pass", func() {
				So(sent, ShouldEqual, 1)
				So(c.seen[0].Description, ShouldEqual, "a")
				So(o.Stats().ActiveNiches, ShouldEqual, 1)
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
			})

			Convey("And b admits once a's niche expires", func() {
				So(o.Tick(context.Background(), now.Add(1100*time.Millisecond)), ShouldEqual, 1)
				So(c.len(), ShouldEqual, 2)
				So(c.seen[1].Description, ShouldEqual, "b")
				So(o.Stats().QueuedRequests, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_IdempotentEviction(t *testing.T) {
	Convey("Given an admitted event and no further enqueues", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(orchestrator.WithClock(func() time.Time { return now }))
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("only", 1000, 2000, time.Second)), ShouldBeNil)
		So(o.Tick(context.Background(), now), ShouldEqual, 1)

		Convey("When ticking repeatedly without advancing time", func() {
			for i := 0; i < 5; i++ {
				So(o.Tick(context.Background(), now), ShouldEqual, 0)
			}

			Convey("Then no extra emissions occur and the niche count is stable", func() {
				So(c.len(), ShouldEqual, 1)
				So(o.Stats().ActiveNiches, ShouldEqual, 1)
			})
		})

		Convey("When ticking after the niche expires", func() {
			So(o.Tick(context.Background(), now.Add(time.Second)), ShouldEqual, 0)

			Convey("Then the registry is empty", func() {
				So(o.Stats().ActiveNiches, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_MalformedEventRejectedAtEnqueue(t *testing.T) {
	Convey("Given an event with a zero duration", t, func() {
		o := orchestrator.New()
		bad := event("bad", 1000, 2000, 0)

		Convey("When enqueued", func() {
			err := o.Enqueue(bad)

			Convey("Then it is rejected and never queued", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, model.ErrMalformedEvent), ShouldBeTrue)
				So(o.Stats().QueuedRequests, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_CallbackFailureDoesNotAbortDrain(t *testing.T) {
	Convey("Given a callback that fails on the first event", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(orchestrator.WithClock(func() time.Time { return now }))

		var delivered []string
		o.SetManifestCallback(func(m model.Manifestation) error {
			if m.Description == "poison" {
				return errors.New("transport down")
			}
			delivered = append(delivered, m.Description)
			return nil
		})

		So(o.Enqueue(event("poison", 100, 200, time.Second)), ShouldBeNil)
		So(o.Enqueue(event("healthy", 4000, 8000, time.Second)), ShouldBeNil)

		Convey("When a tick runs", func() {
			sent := o.Tick(context.Background(), now)

			Convey("Then both events are considered admitted", func() {
				So(sent, ShouldEqual, 2)
				So(o.Stats().ActiveNiches, ShouldEqual, 2)
				So(o.Stats().QueuedRequests, ShouldEqual, 0)
			})

			Convey("And only the healthy delivery reached the transport", func() {
				So(delivered, ShouldResemble, []string{"healthy"})
			})
		})
	})
}

func TestOrchestrator_NoCallbackMeansNoDrain(t *testing.T) {
	Convey("Given an orchestrator without a manifest callback", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(orchestrator.WithClock(func() time.Time { return now }))

		So(o.Enqueue(event("waiting", 1000, 2000, time.Second)), ShouldBeNil)

		Convey("When ticks run", func() {
			So(o.Tick(context.Background(), now), ShouldEqual, 0)

			Convey("Then the entry stays queued", func() {
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
				So(o.Stats().ActiveNiches, ShouldEqual, 0)
			})
		})
	})
}

func TestOrchestrator_IdenticalBandsAlwaysCollide(t *testing.T) {
	Convey("Given two events with identical bands at threshold 0.2", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.2),
			orchestrator.WithClock(func() time.Time { return now }),
		)
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("a", 1000, 2000, time.Second)), ShouldBeNil)
		So(o.Tick(context.Background(), now), ShouldEqual, 1)
		So(o.Enqueue(event("b", 1000, 2000, time.Second)), ShouldBeNil)

		Convey("When ticking while the first still sounds", func() {
			So(o.Tick(context.Background(), now.Add(100*time.Millisecond)), ShouldEqual, 0)

			Convey("Then the second stays queued", func() {
				So(o.Stats().QueuedRequests, ShouldEqual, 1)
			})
		})
	})
}

func TestOrchestrator_DisjointBandsNeverCollide(t *testing.T) {
	Convey("Given an active [100,200] niche and a [400,800] candidate", t, func() {
		now := time.Unix(1000, 0)
		o := orchestrator.New(orchestrator.WithClock(func() time.Time { return now }))
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		So(o.Enqueue(event("low", 100, 200, 10*time.Second)), ShouldBeNil)
		So(o.Tick(context.Background(), now), ShouldEqual, 1)

		So(o.Enqueue(event("mid", 400, 800, time.Second)), ShouldBeNil)

		Convey("When a tick runs", func() {
			So(o.Tick(context.Background(), now.Add(time.Millisecond)), ShouldEqual, 1)

			Convey("Then both sound together", func() {
				So(o.Stats().ActiveNiches, ShouldEqual, 2)
			})
		})
	})
}

func TestOrchestrator_StatsSnapshot(t *testing.T) {
	Convey("Given a configured orchestrator", t, func() {
		o := orchestrator.New(
			orchestrator.WithOverlapThreshold(0.3),
			orchestrator.WithTickInterval(50*time.Millisecond),
		)

		Convey("Then stats reflect construction-time configuration", func() {
			stats := o.Stats()
			So(stats.OverlapThreshold, ShouldEqual, 0.3)
			So(stats.TickIntervalSecs, ShouldEqual, 0.05)
			So(stats.ActiveNiches, ShouldEqual, 0)
			So(stats.QueuedRequests, ShouldEqual, 0)
			So(o.TickInterval(), ShouldEqual, 50*time.Millisecond)
		})
	})
}

func TestOrchestrator_ConcurrentEnqueueDuringTicks(t *testing.T) {
	Convey("Given enqueues racing a ticking driver", t, func() {
		o := orchestrator.New(orchestrator.WithOverlapThreshold(0.2))
		c := &collector{}
		o.SetManifestCallback(c.manifest)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				// Spread bands far apart so everything admits eventually.
				low := 100.0 * float64(i+1) * 4
				_ = o.Enqueue(event(fmt.Sprintf("c%d", i), low, low*1.01, 10*time.Millisecond))
			}
		}()

		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				o.Tick(context.Background(), time.Now())
				time.Sleep(time.Millisecond)
			}
		}()

		wg.Wait()

		Convey("When the queue is drained by further ticks", func() {
			deadline := time.Now().Add(2 * time.Second)
			for o.Stats().QueuedRequests > 0 && time.Now().Before(deadline) {
				o.Tick(context.Background(), time.Now())
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then every enqueued event manifested exactly once", func() {
				So(c.len(), ShouldEqual, 50)
			})
		})
	})
}
