// Package importer loads segment metadata from CSV files into the catalog
// and the vector index. Row failures are collected, not fatal: a bad row
// never aborts the rest of the file.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	"github.com/hibikido/hibikido/internal/adapters/index"
	"github.com/hibikido/hibikido/internal/domain/textproc"
	"github.com/hibikido/hibikido/pkg/logger"
)

// Catalog is the slice of the metadata store the importer needs.
type Catalog interface {
	GetRecording(ctx context.Context, path string) (catalog.Recording, error)
	GetSegmentation(ctx context.Context, id string) (catalog.Segmentation, error)
	AddSegment(ctx context.Context, s catalog.Segment) (int64, error)
}

// Index is the slice of the vector index the importer needs.
type Index interface {
	Add(ctx context.Context, kind index.Kind, text string) (int64, bool, error)
}

// Result summarizes one import run. Errors holds per-row messages, capped
// at the configured limit.
type Result struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Importer reads segment CSVs. Expected header columns (case-insensitive):
// source_path, description, and optionally segmentation_id, start, end,
// freq_low, freq_high, duration.
type Importer struct {
	catalog   Catalog
	index     Index
	maxErrors int
	log       logger.Logger
}

// New builds an importer. maxErrors caps the collected error list; rows
// past the cap are still skipped, just not reported individually.
func New(cat Catalog, idx Index, maxErrors int) *Importer {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &Importer{
		catalog:   cat,
		index:     idx,
		maxErrors: maxErrors,
		log:       logger.Get().Named("importer"),
	}
}

// ImportFile opens and imports the CSV at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads CSV rows from r and inserts a segment per row. Each row's
// description is combined with its recording's and segmentation's context
// into embedding text; the row gets an index entry unless the text is a
// duplicate of one already indexed.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	rowNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			res.Skipped++
			res.addError(im.maxErrors, rowNum, err)
			continue
		}

		if err := im.importRow(ctx, cols, record); err != nil {
			res.Skipped++
			res.addError(im.maxErrors, rowNum, err)
			im.log.Warn(ctx, "row skipped",
				logger.Int("row", rowNum), logger.Error(err))
			continue
		}
		res.Added++
	}

	im.log.Info(ctx, "import finished",
		logger.Int("added", res.Added),
		logger.Int("skipped", res.Skipped),
		logger.Int("errors", len(res.Errors)))
	return res, nil
}

func (r *Result) addError(max, row int, err error) {
	if len(r.Errors) < max {
		r.Errors = append(r.Errors, fmt.Sprintf("row %d: %v", row, err))
	}
}

// columns maps header names to their positions. -1 means absent.
type columns struct {
	sourcePath     int
	description    int
	segmentationID int
	start          int
	end            int
	freqLow        int
	freqHigh       int
	duration       int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{
		sourcePath: -1, description: -1, segmentationID: -1,
		start: -1, end: -1, freqLow: -1, freqHigh: -1, duration: -1,
	}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "source_path", "path", "file":
			cols.sourcePath = i
		case "description":
			cols.description = i
		case "segmentation_id":
			cols.segmentationID = i
		case "start":
			cols.start = i
		case "end":
			cols.end = i
		case "freq_low":
			cols.freqLow = i
		case "freq_high":
			cols.freqHigh = i
		case "duration", "duration_s":
			cols.duration = i
		}
	}
	if cols.sourcePath < 0 {
		return columns{}, fmt.Errorf("%w: no source_path column", ErrBadHeader)
	}
	if cols.description < 0 {
		return columns{}, fmt.Errorf("%w: no description column", ErrBadHeader)
	}
	return cols, nil
}

func (im *Importer) importRow(ctx context.Context, cols columns, record []string) error {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	sourcePath := field(cols.sourcePath)
	if sourcePath == "" {
		return errors.New("empty source_path")
	}
	description := field(cols.description)
	if description == "" {
		return errors.New("empty description")
	}

	seg := catalog.Segment{
		SourcePath:     sourcePath,
		SegmentationID: field(cols.segmentationID),
		WindowStart:    0,
		WindowEnd:      1,
		Description:    description,
	}

	var err error
	if v := field(cols.start); v != "" {
		if seg.WindowStart, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("bad start: %w", err)
		}
	}
	if v := field(cols.end); v != "" {
		if seg.WindowEnd, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("bad end: %w", err)
		}
	}
	if v := field(cols.freqLow); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad freq_low: %w", err)
		}
		seg.FreqLow = &f
	}
	if v := field(cols.freqHigh); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad freq_high: %w", err)
		}
		seg.FreqHigh = &f
	}
	if v := field(cols.duration); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad duration: %w", err)
		}
		seg.DurationS = &f
	}

	// Broader context is best-effort: a row may reference a recording or
	// segmentation the catalog has not seen.
	var recordingDesc, segmentationDesc string
	if rec, err := im.catalog.GetRecording(ctx, sourcePath); err == nil {
		recordingDesc = rec.Description
	}
	if seg.SegmentationID != "" {
		if sn, err := im.catalog.GetSegmentation(ctx, seg.SegmentationID); err == nil {
			segmentationDesc = sn.Description
		}
	}

	seg.EmbeddingText = textproc.SegmentText(description, segmentationDesc, recordingDesc)
	if seg.EmbeddingText == "" {
		return errors.New("no meaningful text to embed")
	}

	embedID, dup, err := im.index.Add(ctx, index.KindSegment, seg.EmbeddingText)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if !dup {
		seg.EmbedID = &embedID
	}

	if _, err := im.catalog.AddSegment(ctx, seg); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
