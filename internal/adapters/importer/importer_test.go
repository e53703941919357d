package importer_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	"github.com/hibikido/hibikido/internal/adapters/importer"
	"github.com/hibikido/hibikido/internal/adapters/index"
	"github.com/hibikido/hibikido/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func newFixtures(t *testing.T) (*catalog.Catalog, *index.Index) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	idx, err := index.New()
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return cat, idx
}

func TestImport(t *testing.T) {
	Convey("Given a well-formed CSV", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		im := importer.New(cat, idx, 10)

		csv := strings.Join([]string{
			"source_path,description,start,end,freq_low,freq_high,duration",
			"sea.wav,breaking wave against rocks,0.1,0.4,60,400,3.2",
			"sea.wav,distant gull cries,0.5,0.6,1000,4000,1.5",
		}, "\n")

		Convey("When imported", func() {
			res, err := im.Import(ctx, strings.NewReader(csv))
			So(err, ShouldBeNil)

			Convey("Then every row lands in catalog and index", func() {
				So(res.Added, ShouldEqual, 2)
				So(res.Skipped, ShouldEqual, 0)
				So(res.Errors, ShouldBeEmpty)
				So(idx.Count(), ShouldEqual, 2)

				segs, err := cat.SegmentsByRecording(ctx, "sea.wav")
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
				So(segs[0].EmbedID, ShouldNotBeNil)
				So(*segs[0].FreqLow, ShouldEqual, 60.0)
				So(*segs[0].DurationS, ShouldEqual, 3.2)
			})
		})
	})
}

func TestImportRowErrors(t *testing.T) {
	Convey("Given a CSV with bad rows mixed in", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		im := importer.New(cat, idx, 10)

		csv := strings.Join([]string{
			"source_path,description,start",
			"a.wav,first usable row,0.1",
			",missing the path,0.2",
			"b.wav,,0.3",
			"c.wav,bad start value,not-a-number",
			"d.wav,last usable row,0.9",
		}, "\n")

		Convey("When imported", func() {
			res, err := im.Import(ctx, strings.NewReader(csv))
			So(err, ShouldBeNil)

			Convey("Then good rows survive the bad ones", func() {
				So(res.Added, ShouldEqual, 2)
				So(res.Skipped, ShouldEqual, 3)
				So(len(res.Errors), ShouldEqual, 3)
				So(res.Errors[0], ShouldContainSubstring, "row 3")
			})
		})
	})
}

func TestImportErrorCap(t *testing.T) {
	Convey("Given more bad rows than the error cap", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		im := importer.New(cat, idx, 2)

		lines := []string{"source_path,description"}
		for i := 0; i < 5; i++ {
			lines = append(lines, ",no path here")
		}

		Convey("When imported", func() {
			res, err := im.Import(ctx, strings.NewReader(strings.Join(lines, "\n")))
			So(err, ShouldBeNil)

			Convey("Then all rows are skipped but the report is capped", func() {
				So(res.Skipped, ShouldEqual, 5)
				So(len(res.Errors), ShouldEqual, 2)
			})
		})
	})
}

func TestImportBadHeader(t *testing.T) {
	Convey("Given a CSV without the required columns", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		im := importer.New(cat, idx, 10)

		Convey("When imported", func() {
			_, err := im.Import(ctx, strings.NewReader("title,notes\nx,y"))

			Convey("Then the import fails outright", func() {
				So(errors.Is(err, importer.ErrBadHeader), ShouldBeTrue)
			})
		})
	})
}

func TestImportDuplicateText(t *testing.T) {
	Convey("Given two rows with identical descriptions", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		im := importer.New(cat, idx, 10)

		csv := strings.Join([]string{
			"source_path,description",
			"a.wav,identical text here",
			"b.wav,identical text here",
		}, "\n")

		Convey("When imported", func() {
			res, err := im.Import(ctx, strings.NewReader(csv))
			So(err, ShouldBeNil)

			Convey("Then both rows store but only one owns the index entry", func() {
				So(res.Added, ShouldEqual, 2)
				So(idx.Count(), ShouldEqual, 1)

				a, err := cat.SegmentsByRecording(ctx, "a.wav")
				So(err, ShouldBeNil)
				b, err := cat.SegmentsByRecording(ctx, "b.wav")
				So(err, ShouldBeNil)
				So(a[0].EmbedID, ShouldNotBeNil)
				So(b[0].EmbedID, ShouldBeNil)
			})
		})
	})
}

func TestImportUsesHierarchicalContext(t *testing.T) {
	Convey("Given a recording already in the catalog", t, func() {
		ctx := context.Background()
		cat, idx := newFixtures(t)
		So(cat.AddRecording(ctx, "forest.wav", "old growth forest ambience"), ShouldBeNil)
		im := importer.New(cat, idx, 10)

		csv := "source_path,description\nforest.wav,woodpecker tapping"

		Convey("When a segment row references it", func() {
			res, err := im.Import(ctx, strings.NewReader(csv))
			So(err, ShouldBeNil)
			So(res.Added, ShouldEqual, 1)

			Convey("Then the embedding text carries the recording context", func() {
				segs, err := cat.SegmentsByRecording(ctx, "forest.wav")
				So(err, ShouldBeNil)
				So(segs[0].EmbeddingText, ShouldContainSubstring, "woodpecker")
				So(segs[0].EmbeddingText, ShouldContainSubstring, "forest")
			})
		})
	})
}
