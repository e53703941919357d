package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	service "github.com/hibikido/hibikido/internal/app"
	"github.com/hibikido/hibikido/internal/domain/model"
	"github.com/hibikido/hibikido/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func newTestService(t *testing.T, opts ...service.Option) (*service.Service, chan model.Manifestation) {
	t.Helper()
	dir := t.TempDir()

	base := []service.Option{
		service.WithDBPath(filepath.Join(dir, "svc.db")),
		service.WithIndexPath(filepath.Join(dir, "svc.index")),
		service.WithTickInterval(10 * time.Millisecond),
		service.WithEventDefaults(200, 2000, 50*time.Millisecond),
	}
	svc := service.New(append(base, opts...)...)

	manifested := make(chan model.Manifestation, 64)
	svc.SetManifestSink(func(m model.Manifestation) { manifested <- m })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, manifested
}

func seedSegments(t *testing.T, svc *service.Service) {
	t.Helper()
	ctx := context.Background()
	So(svc.AddRecording(ctx, "sea.wav", "north sea field session"), ShouldBeNil)

	for _, seg := range []catalog.Segment{
		{SourcePath: "sea.wav", Description: "storm waves crashing cliffs", WindowStart: 0, WindowEnd: 0.4},
		{SourcePath: "sea.wav", Description: "distant gull cries over water", WindowStart: 0.4, WindowEnd: 0.7},
		{SourcePath: "sea.wav", Description: "calm harbor night lapping", WindowStart: 0.7, WindowEnd: 1},
	} {
		_, err := svc.AddSegment(ctx, seg)
		So(err, ShouldBeNil)
	}
}

func TestInvokeFlow(t *testing.T) {
	Convey("Given a service with a seeded catalog", t, func() {
		svc, manifested := newTestService(t)
		seedSegments(t, svc)
		ctx := context.Background()

		Convey("When a performer invokes a matching phrase", func() {
			id, queued, err := svc.Invoke(ctx, "the sound of storm waves")
			So(err, ShouldBeNil)

			Convey("Then hits are queued and an invocation id returned", func() {
				So(id, ShouldNotBeEmpty)
				So(queued, ShouldBeGreaterThanOrEqualTo, 1)
			})

			Convey("Then the scheduler eventually manifests the best hit", func() {
				select {
				case m := <-manifested:
					So(m.SourcePath, ShouldEqual, "sea.wav")
					So(m.CollectionKind, ShouldEqual, "segments")
					So(m.Description, ShouldContainSubstring, "storm")
				case <-time.After(2 * time.Second):
					So("no manifestation arrived", ShouldBeEmpty)
				}
			})
		})

		Convey("When the phrase is only stop words", func() {
			_, _, err := svc.Invoke(ctx, "   ...   ")
			So(errors.Is(err, service.ErrEmptyInvocation), ShouldBeTrue)
		})

	})
}

func TestInvokeWithEmptyCatalog(t *testing.T) {
	Convey("Given a service with nothing indexed", t, func() {
		svc, _ := newTestService(t)

		Convey("When a performer invokes", func() {
			id, queued, err := svc.Invoke(context.Background(), "storm at sea")

			Convey("Then nothing queues but the invocation succeeds", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				So(queued, ShouldEqual, 0)
			})
		})
	})
}

func TestAddSegmentBuildsContext(t *testing.T) {
	Convey("Given a recording and a segmentation in the catalog", t, func() {
		svc, _ := newTestService(t)
		ctx := context.Background()

		So(svc.AddRecording(ctx, "forest.wav", "old growth forest ambience"), ShouldBeNil)

		Convey("When a segment is added", func() {
			_, err := svc.AddSegment(ctx, catalog.Segment{
				SourcePath:  "forest.wav",
				Description: "woodpecker tapping",
			})
			So(err, ShouldBeNil)

			Convey("Then an invocation naming the recording context finds it", func() {
				_, queued, err := svc.Invoke(ctx, "forest tapping")
				So(err, ShouldBeNil)
				So(queued, ShouldEqual, 1)
			})
		})

		Convey("When a segment references a segmentation", func() {
			So(svc.AddSegmentation(ctx, catalog.Segmentation{
				ID:          "manual-v1",
				Method:      "manual",
				Description: "percussive transient passes",
			}), ShouldBeNil)

			_, err := svc.AddSegment(ctx, catalog.Segment{
				SourcePath:     "forest.wav",
				SegmentationID: "manual-v1",
				Description:    "woodpecker tapping",
			})
			So(err, ShouldBeNil)

			Convey("Then an invocation naming the segmentation context finds it", func() {
				_, queued, err := svc.Invoke(ctx, "percussive transient")
				So(err, ShouldBeNil)
				So(queued, ShouldEqual, 1)
			})
		})

		Convey("When a segment has no usable text", func() {
			_, err := svc.AddSegment(ctx, catalog.Segment{
				SourcePath:  "unknown.wav",
				Description: "a an of",
			})
			So(errors.Is(err, service.ErrNoEmbeddingText), ShouldBeTrue)
		})
	})
}

func TestPresetFlow(t *testing.T) {
	Convey("Given an effect with a preset", t, func() {
		svc, manifested := newTestService(t)
		ctx := context.Background()

		So(svc.AddEffect(ctx, "fx/reverb", "cathedral", "convolution reverb"), ShouldBeNil)
		_, err := svc.AddPreset(ctx, catalog.Preset{
			EffectPath:  "fx/reverb",
			Parameters:  `[0.8, 0.2]`,
			Description: "long shimmering tail",
		})
		So(err, ShouldBeNil)

		Convey("When an invocation matches the preset", func() {
			_, queued, err := svc.Invoke(ctx, "shimmering cathedral tail")
			So(err, ShouldBeNil)
			So(queued, ShouldEqual, 1)

			Convey("Then the manifestation carries the effect parameters", func() {
				select {
				case m := <-manifested:
					So(m.CollectionKind, ShouldEqual, "presets")
					So(m.SourcePath, ShouldEqual, "fx/reverb")
					So(m.ParametersBlob, ShouldEqual, `[0.8, 0.2]`)
				case <-time.After(2 * time.Second):
					So("no manifestation arrived", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestReindex(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, _ := newTestService(t)
		seedSegments(t, svc)
		ctx := context.Background()

		Convey("When the index is rebuilt", func() {
			n, err := svc.Reindex(ctx)
			So(err, ShouldBeNil)

			Convey("Then every embedding text is back in the index", func() {
				So(n, ShouldEqual, 3)
			})

			Convey("Then invocations still resolve", func() {
				_, queued, err := svc.Invoke(ctx, "calm harbor night")
				So(err, ShouldBeNil)
				So(queued, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, _ := newTestService(t)
		seedSegments(t, svc)
		ctx := context.Background()

		Convey("When stats are requested", func() {
			stats := svc.GetStats(ctx)

			Convey("Then scheduler keys are top-level", func() {
				So(stats["active_niches"], ShouldEqual, 0)
				So(stats["queued_requests"], ShouldEqual, 0)
				So(stats["overlap_threshold"], ShouldEqual, 0.2)
				So(stats["tick_interval"], ShouldEqual, 0.01)
				So(stats["performance_id"], ShouldNotBeEmpty)
				So(stats["index_entries"], ShouldEqual, 3)
			})

			Convey("Then catalog counts are nested", func() {
				cat, ok := stats["catalog"].(catalog.Stats)
				So(ok, ShouldBeTrue)
				So(cat.Recordings, ShouldEqual, 1)
				So(cat.Segments, ShouldEqual, 3)
				So(cat.SegmentsEmbedded, ShouldEqual, 3)
			})
		})
	})
}

func TestStopWhileTicking(t *testing.T) {
	Convey("Given a fast-ticking service draining a full queue", t, func() {
		svc, _ := newTestService(t, service.WithTickInterval(time.Millisecond))

		for i := 0; i < 500; i++ {
			low := 100.0 * float64(i+1) * 4
			err := svc.Enqueue(model.SoundEvent{
				CollectionKind: "segments",
				SoundID:        "load",
				FreqLow:        low,
				FreqHigh:       low * 1.01,
				Duration:       time.Millisecond,
			})
			So(err, ShouldBeNil)
		}

		Convey("When stopped mid-drain", func() {
			// Let a few ticks fire so manifest sends are in flight.
			time.Sleep(10 * time.Millisecond)
			svc.Stop()

			Convey("Then shutdown completes without panicking", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestStartStopIdempotent(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc, _ := newTestService(t)

		Convey("Then starting again is a no-op", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
		})

		Convey("Then stopping twice is safe", func() {
			svc.Stop()
			svc.Stop()
		})
	})
}
