package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	"github.com/hibikido/hibikido/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordings(t *testing.T) {
	Convey("Given an open catalog", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)

		Convey("When a recording is added", func() {
			So(c.AddRecording(ctx, "forest/dawn.wav", "dawn chorus in a pine forest"), ShouldBeNil)

			Convey("Then it can be fetched by path", func() {
				r, err := c.GetRecording(ctx, "forest/dawn.wav")
				So(err, ShouldBeNil)
				So(r.Description, ShouldEqual, "dawn chorus in a pine forest")
			})

			Convey("Then adding the same path again reports a duplicate", func() {
				err := c.AddRecording(ctx, "forest/dawn.wav", "other")
				So(errors.Is(err, catalog.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When fetching a missing recording", func() {
			_, err := c.GetRecording(ctx, "nope.wav")
			So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestSegments(t *testing.T) {
	Convey("Given a catalog with a recording", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)
		So(c.AddRecording(ctx, "sea.wav", "north sea storm"), ShouldBeNil)

		Convey("When segments are added", func() {
			id1, err := c.AddSegment(ctx, catalog.Segment{
				SourcePath:    "sea.wav",
				WindowStart:   0.5,
				WindowEnd:     0.8,
				Description:   "breaking wave",
				EmbeddingText: "breaking wave storm",
			})
			So(err, ShouldBeNil)

			id2, err := c.AddSegment(ctx, catalog.Segment{
				SourcePath:    "sea.wav",
				WindowStart:   0.1,
				WindowEnd:     0.3,
				Description:   "distant gulls",
				EmbeddingText: "distant gulls storm",
			})
			So(err, ShouldBeNil)
			So(id2, ShouldBeGreaterThan, id1)

			Convey("Then listing by recording orders by window start", func() {
				segs, err := c.SegmentsByRecording(ctx, "sea.wav")
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
				So(segs[0].Description, ShouldEqual, "distant gulls")
				So(segs[1].Description, ShouldEqual, "breaking wave")
			})

			Convey("Then both start out without embeddings", func() {
				pending, err := c.SegmentsWithoutEmbedding(ctx)
				So(err, ShouldBeNil)
				So(len(pending), ShouldEqual, 2)
			})

			Convey("When an embed id is assigned", func() {
				So(c.SetSegmentEmbedID(ctx, id1, 42), ShouldBeNil)

				Convey("Then the segment resolves by embed id", func() {
					s, err := c.GetSegmentByEmbedID(ctx, 42)
					So(err, ShouldBeNil)
					So(s.ID, ShouldEqual, id1)
					So(s.Description, ShouldEqual, "breaking wave")
				})

				Convey("Then a second segment cannot claim the same embed id", func() {
					err := c.SetSegmentEmbedID(ctx, id2, 42)
					So(errors.Is(err, catalog.ErrDuplicate), ShouldBeTrue)
				})

				Convey("Then only the other segment remains unembedded", func() {
					pending, err := c.SegmentsWithoutEmbedding(ctx)
					So(err, ShouldBeNil)
					So(len(pending), ShouldEqual, 1)
					So(pending[0].ID, ShouldEqual, id2)
				})
			})

			Convey("Then assigning to a missing segment reports not found", func() {
				err := c.SetSegmentEmbedID(ctx, 9999, 7)
				So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a segment carries scheduler fields", func() {
			low, high, dur := 80.0, 250.0, 3.5
			id, err := c.AddSegment(ctx, catalog.Segment{
				SourcePath: "sea.wav",
				FreqLow:    &low,
				FreqHigh:   &high,
				DurationS:  &dur,
			})
			So(err, ShouldBeNil)
			So(c.SetSegmentEmbedID(ctx, id, 1), ShouldBeNil)

			Convey("Then they round-trip", func() {
				s, err := c.GetSegmentByEmbedID(ctx, 1)
				So(err, ShouldBeNil)
				So(*s.FreqLow, ShouldEqual, 80.0)
				So(*s.FreqHigh, ShouldEqual, 250.0)
				So(*s.DurationS, ShouldEqual, 3.5)
			})
		})
	})
}

func TestSegmentations(t *testing.T) {
	Convey("Given an open catalog", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)

		Convey("When a segmentation is added", func() {
			So(c.AddSegmentation(ctx, catalog.Segmentation{
				ID:          "onset-v2",
				Method:      "onset",
				Parameters:  `{"threshold": 0.3}`,
				Description: "percussive onset detection",
			}), ShouldBeNil)

			Convey("Then it resolves by id", func() {
				sn, err := c.GetSegmentation(ctx, "onset-v2")
				So(err, ShouldBeNil)
				So(sn.Method, ShouldEqual, "onset")
				So(sn.Description, ShouldEqual, "percussive onset detection")
			})

			Convey("Then a duplicate id is rejected", func() {
				err := c.AddSegmentation(ctx, catalog.Segmentation{ID: "onset-v2"})
				So(errors.Is(err, catalog.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When parameters are omitted", func() {
			So(c.AddSegmentation(ctx, catalog.Segmentation{ID: "manual-v1", Method: "manual"}), ShouldBeNil)
			sn, err := c.GetSegmentation(ctx, "manual-v1")
			So(err, ShouldBeNil)
			So(sn.Parameters, ShouldEqual, "{}")
		})

		Convey("When fetching a missing segmentation", func() {
			_, err := c.GetSegmentation(ctx, "nope")
			So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestEffectsAndPresets(t *testing.T) {
	Convey("Given a catalog with an effect", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)
		So(c.AddEffect(ctx, "fx/reverb", "cathedral", "long convolution reverb"), ShouldBeNil)

		Convey("Then the effect resolves by path", func() {
			e, err := c.GetEffect(ctx, "fx/reverb")
			So(err, ShouldBeNil)
			So(e.Name, ShouldEqual, "cathedral")
		})

		Convey("Then a duplicate path is rejected", func() {
			err := c.AddEffect(ctx, "fx/reverb", "other", "")
			So(errors.Is(err, catalog.ErrDuplicate), ShouldBeTrue)
		})

		Convey("When presets are added", func() {
			id, err := c.AddPreset(ctx, catalog.Preset{
				EffectPath:    "fx/reverb",
				Parameters:    `[0.8, 0.2]`,
				Description:   "long shimmering tail",
				EmbeddingText: "long shimmering tail convolution",
			})
			So(err, ShouldBeNil)

			Convey("Then they list by effect", func() {
				presets, err := c.PresetsByEffect(ctx, "fx/reverb")
				So(err, ShouldBeNil)
				So(len(presets), ShouldEqual, 1)
				So(presets[0].Parameters, ShouldEqual, `[0.8, 0.2]`)
			})

			Convey("Then embed id assignment and lookup work", func() {
				So(c.SetPresetEmbedID(ctx, id, 7), ShouldBeNil)
				p, err := c.GetPresetByEmbedID(ctx, 7)
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, id)
			})

			Convey("Then empty parameters default to an empty JSON array", func() {
				id2, err := c.AddPreset(ctx, catalog.Preset{EffectPath: "fx/reverb"})
				So(err, ShouldBeNil)
				So(c.SetPresetEmbedID(ctx, id2, 8), ShouldBeNil)
				p, err := c.GetPresetByEmbedID(ctx, 8)
				So(err, ShouldBeNil)
				So(p.Parameters, ShouldEqual, "[]")
			})
		})
	})
}

func TestPerformances(t *testing.T) {
	Convey("Given a catalog with an open performance", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)
		So(c.AddPerformance(ctx, "perf-1", time.Now()), ShouldBeNil)

		Convey("Then a duplicate session id is rejected", func() {
			err := c.AddPerformance(ctx, "perf-1", time.Now())
			So(errors.Is(err, catalog.ErrDuplicate), ShouldBeTrue)
		})

		Convey("When invocations are recorded", func() {
			_, err := c.AddInvocation(ctx, catalog.Invocation{
				PerformanceID: "perf-1", Text: "storm at sea", TimeOffsetS: 12.5,
			})
			So(err, ShouldBeNil)
			_, err = c.AddInvocation(ctx, catalog.Invocation{
				PerformanceID: "perf-1", Text: "distant bells", TimeOffsetS: 30.0,
			})
			So(err, ShouldBeNil)

			Convey("Then they list in order", func() {
				invs, err := c.InvocationsByPerformance(ctx, "perf-1")
				So(err, ShouldBeNil)
				So(len(invs), ShouldEqual, 2)
				So(invs[0].Text, ShouldEqual, "storm at sea")
				So(invs[1].TimeOffsetS, ShouldEqual, 30.0)
			})
		})
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given a populated catalog", t, func() {
		ctx := context.Background()
		c := openTestCatalog(t)

		So(c.AddRecording(ctx, "a.wav", "one"), ShouldBeNil)
		id, err := c.AddSegment(ctx, catalog.Segment{SourcePath: "a.wav"})
		So(err, ShouldBeNil)
		So(c.SetSegmentEmbedID(ctx, id, 0), ShouldBeNil)
		_, err = c.AddSegment(ctx, catalog.Segment{SourcePath: "a.wav"})
		So(err, ShouldBeNil)
		So(c.AddEffect(ctx, "fx/e", "e", ""), ShouldBeNil)

		Convey("Then stats count totals and embedded rows", func() {
			s, err := c.GetStats(ctx)
			So(err, ShouldBeNil)
			So(s.Recordings, ShouldEqual, 1)
			So(s.Segments, ShouldEqual, 2)
			So(s.SegmentsEmbedded, ShouldEqual, 1)
			So(s.Effects, ShouldEqual, 1)
			So(s.Presets, ShouldEqual, 0)
		})
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	Convey("Given a database that was opened before", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "reopen.db")

		c, err := catalog.Open(path)
		So(err, ShouldBeNil)
		So(c.AddRecording(ctx, "keep.wav", "persisted"), ShouldBeNil)
		So(c.Close(), ShouldBeNil)

		Convey("When reopened", func() {
			c2, err := catalog.Open(path)
			So(err, ShouldBeNil)
			defer c2.Close()

			Convey("Then existing data is intact", func() {
				r, err := c2.GetRecording(ctx, "keep.wav")
				So(err, ShouldBeNil)
				So(r.Description, ShouldEqual, "persisted")
			})
		})
	})
}
