// Package service provides the core business service that implements
// the dependencies required by the HTTP and WebSocket transports.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	"github.com/hibikido/hibikido/internal/adapters/importer"
	"github.com/hibikido/hibikido/internal/adapters/index"
	"github.com/hibikido/hibikido/internal/domain/model"
	"github.com/hibikido/hibikido/internal/domain/orchestrator"
	"github.com/hibikido/hibikido/internal/domain/textproc"
	"github.com/hibikido/hibikido/pkg/logger"
	"github.com/hibikido/hibikido/pkg/metrics"
)

// ManifestSink receives every manifestation the scheduler releases.
// Typically the WebSocket hub's Broadcast.
type ManifestSink func(m model.Manifestation)

// Service wires the catalog, the vector index and the scheduler into the
// invocation flow. It implements the transport dependency interfaces.
type Service struct {
	mu sync.Mutex

	// Core components
	catalog *catalog.Catalog
	index   *index.Index
	orch    *orchestrator.Orchestrator
	imp     *importer.Importer

	// Configuration
	dbPath           string
	indexPath        string
	embedderName     string
	embeddingModel   string
	overlapThreshold float64
	tickInterval     time.Duration
	topK             int
	defaultFreqLow   float64
	defaultFreqHigh  float64
	defaultDuration  time.Duration
	manifestBuffer   int
	maxImportErrors  int

	// State
	started       bool
	performanceID string
	perfStart     time.Time
	manifestCh    chan model.Manifestation
	sink          ManifestSink
	stopTick      context.CancelFunc
	tickWG        sync.WaitGroup
	fanWG         sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:           "hibikido.db",
		indexPath:        "hibikido.index",
		embedderName:     "hash",
		embeddingModel:   "text-embedding-3-small",
		overlapThreshold: 0.2,
		tickInterval:     100 * time.Millisecond,
		topK:             10,
		defaultFreqLow:   200,
		defaultFreqHigh:  2000,
		defaultDuration:  time.Second,
		manifestBuffer:   256,
		maxImportErrors:  100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetManifestSink routes released manifestations to sink. Must be called
// before Start.
func (s *Service) SetManifestSink(sink ManifestSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Start opens the stores, builds the scheduler and launches the tick driver
// and the manifest fan-out loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting manifestation service...")

	cat, err := catalog.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	s.catalog = cat

	var embedder index.Embedder
	switch s.embedderName {
	case "openai":
		embedder = index.NewOpenAIEmbedder(s.embeddingModel)
	default:
		embedder = index.NewHashingEmbedder()
	}
	idx, err := index.New(
		index.WithEmbedder(embedder),
		index.WithSnapshotPath(s.indexPath),
	)
	if err != nil {
		cat.Close()
		return fmt.Errorf("open index: %w", err)
	}
	s.index = idx

	s.imp = importer.New(cat, idx, s.maxImportErrors)

	s.orch = orchestrator.New(
		orchestrator.WithOverlapThreshold(s.overlapThreshold),
		orchestrator.WithTickInterval(s.tickInterval),
	)
	s.orch.SetManifestCallback(s.onManifest)

	s.manifestCh = make(chan model.Manifestation, s.manifestBuffer)

	// Each service run is one performance session.
	s.performanceID = uuid.NewString()
	s.perfStart = time.Now()
	if err := cat.AddPerformance(ctx, s.performanceID, s.perfStart); err != nil {
		s.logger.Warn(ctx, "performance session not recorded", logger.Error(err))
	}

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopTick = cancel

	s.tickWG.Add(1)
	go s.tickLoop(tickCtx)
	s.fanWG.Add(1)
	go s.fanOutLoop()

	s.started = true
	s.logger.Info(ctx, "manifestation service started",
		logger.String("performance", s.performanceID),
		logger.Float64("overlap_threshold", s.overlapThreshold),
		logger.Duration("tick_interval", s.tickInterval),
		logger.Int("index_entries", idx.Count()),
	)
	return nil
}

// Stop drains the background loops and closes the stores.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping manifestation service...")

	// Stop ticking first and wait for the loop to exit: cancellation does
	// not interrupt an in-flight Tick, and its callback sends on
	// manifestCh, so the channel may only close once the loop is done.
	s.stopTick()
	s.tickWG.Wait()
	close(s.manifestCh)
	s.fanWG.Wait()

	if err := s.index.Close(); err != nil {
		s.logger.Warn(ctx, "index close failed", logger.Error(err))
	}
	if err := s.catalog.Close(); err != nil {
		s.logger.Warn(ctx, "catalog close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "manifestation service stopped")
}

// tickLoop drives the scheduler until the context ends.
func (s *Service) tickLoop(ctx context.Context) {
	defer s.tickWG.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.orch.Tick(ctx, now)
		}
	}
}

// fanOutLoop forwards queued manifestations to the sink.
func (s *Service) fanOutLoop() {
	defer s.fanWG.Done()

	for m := range s.manifestCh {
		if s.sink != nil {
			s.sink(m)
		}
	}
}

// onManifest runs inside the scheduler's critical section: record and hand
// off, never block. A full buffer drops the push; delivery is at-most-once.
func (s *Service) onManifest(m model.Manifestation) error {
	select {
	case s.manifestCh <- m:
	default:
		s.logger.Warn(context.Background(), "manifest buffer full, push dropped",
			logger.Int("index", m.SequenceIndex),
			logger.String("path", m.SourcePath))
	}
	return nil
}

// Invoke turns a performer phrase into queued sound events. Every hit the
// index returns is enqueued; whether and when each one sounds is the
// scheduler's decision.
func (s *Service) Invoke(ctx context.Context, text string) (string, int, error) {
	query := textproc.EnhanceQuery(text)
	if query == "" {
		query = textproc.Clean(text)
	}
	if query == "" {
		return "", 0, ErrEmptyInvocation
	}

	metrics.RecordInvocation()

	hits, err := s.index.Search(ctx, query, s.topK)
	if err != nil {
		return "", 0, fmt.Errorf("search: %w", err)
	}
	metrics.RecordSearchResults(len(hits))

	invocationID := uuid.NewString()
	queued := 0
	for rank, hit := range hits {
		event, err := s.eventForHit(ctx, rank, hit)
		if err != nil {
			s.logger.Warn(ctx, "hit not resolvable",
				logger.Int("embed_id", int(hit.EmbedID)), logger.Error(err))
			continue
		}
		if err := s.orch.Enqueue(event); err != nil {
			s.logger.Warn(ctx, "enqueue rejected",
				logger.String("path", event.SourcePath), logger.Error(err))
			continue
		}
		queued++
	}

	s.recordInvocation(ctx, text, hits)

	s.logger.Info(ctx, "invocation processed",
		logger.String("invocation", invocationID),
		logger.String("query", query),
		logger.Int("hits", len(hits)),
		logger.Int("queued", queued))
	return invocationID, queued, nil
}

// eventForHit resolves an index hit into a schedulable event, falling back
// to configured frequency and duration defaults where the catalog row has
// none.
func (s *Service) eventForHit(ctx context.Context, rank int, hit index.Hit) (model.SoundEvent, error) {
	event := model.SoundEvent{
		SequenceIndex:  rank,
		CollectionKind: string(hit.Kind),
		Score:          hit.Score,
		FreqLow:        s.defaultFreqLow,
		FreqHigh:       s.defaultFreqHigh,
		Duration:       s.defaultDuration,
	}

	switch hit.Kind {
	case index.KindSegment:
		seg, err := s.catalog.GetSegmentByEmbedID(ctx, hit.EmbedID)
		if err != nil {
			return model.SoundEvent{}, err
		}
		event.SourcePath = seg.SourcePath
		event.Description = seg.Description
		event.WindowStart = seg.WindowStart
		event.WindowEnd = seg.WindowEnd
		event.SoundID = fmt.Sprintf("segment-%d", seg.ID)
		if seg.FreqLow != nil {
			event.FreqLow = *seg.FreqLow
		}
		if seg.FreqHigh != nil {
			event.FreqHigh = *seg.FreqHigh
		}
		if seg.DurationS != nil && *seg.DurationS > 0 {
			event.Duration = time.Duration(*seg.DurationS * float64(time.Second))
		}
	case index.KindPreset:
		preset, err := s.catalog.GetPresetByEmbedID(ctx, hit.EmbedID)
		if err != nil {
			return model.SoundEvent{}, err
		}
		event.SourcePath = preset.EffectPath
		event.Description = preset.Description
		event.WindowStart = 0
		event.WindowEnd = 1
		event.ParametersBlob = preset.Parameters
		event.SoundID = fmt.Sprintf("preset-%d", preset.ID)
	default:
		return model.SoundEvent{}, fmt.Errorf("unknown collection %q", hit.Kind)
	}
	return event, nil
}

// recordInvocation appends the phrase to the performance history,
// best-effort.
func (s *Service) recordInvocation(ctx context.Context, text string, hits []index.Hit) {
	inv := catalog.Invocation{
		PerformanceID: s.performanceID,
		Text:          text,
		TimeOffsetS:   time.Since(s.perfStart).Seconds(),
	}
	if len(hits) > 0 {
		top := hits[0]
		switch top.Kind {
		case index.KindSegment:
			if seg, err := s.catalog.GetSegmentByEmbedID(ctx, top.EmbedID); err == nil {
				inv.SegmentID = &seg.ID
			}
		case index.KindPreset:
			if p, err := s.catalog.GetPresetByEmbedID(ctx, top.EmbedID); err == nil {
				inv.EffectPath = &p.EffectPath
			}
		}
	}
	if _, err := s.catalog.AddInvocation(ctx, inv); err != nil {
		s.logger.Warn(ctx, "invocation not recorded", logger.Error(err))
	}
}

// AddRecording stores a recording's metadata.
func (s *Service) AddRecording(ctx context.Context, path, description string) error {
	return s.catalog.AddRecording(ctx, path, description)
}

// AddSegmentation stores a segmentation run's metadata. Segments that
// reference it pick up its description as embedding context.
func (s *Service) AddSegmentation(ctx context.Context, sn catalog.Segmentation) error {
	return s.catalog.AddSegmentation(ctx, sn)
}

// AddEffect stores an effect's metadata.
func (s *Service) AddEffect(ctx context.Context, path, name, description string) error {
	return s.catalog.AddEffect(ctx, path, name, description)
}

// AddSegment builds the segment's embedding text from its hierarchical
// context, indexes it and stores the row. Duplicate text leaves the segment
// unembedded; the earlier entry keeps the id.
func (s *Service) AddSegment(ctx context.Context, seg catalog.Segment) (int64, error) {
	var recordingDesc, segmentationDesc string
	if rec, err := s.catalog.GetRecording(ctx, seg.SourcePath); err == nil {
		recordingDesc = rec.Description
	}
	if seg.SegmentationID != "" {
		if sn, err := s.catalog.GetSegmentation(ctx, seg.SegmentationID); err == nil {
			segmentationDesc = sn.Description
		}
	}

	seg.EmbeddingText = textproc.SegmentText(seg.Description, segmentationDesc, recordingDesc)
	if seg.EmbeddingText == "" {
		return 0, ErrNoEmbeddingText
	}

	embedID, dup, err := s.index.Add(ctx, index.KindSegment, seg.EmbeddingText)
	if err != nil {
		return 0, fmt.Errorf("embed segment: %w", err)
	}
	if !dup {
		seg.EmbedID = &embedID
	}
	return s.catalog.AddSegment(ctx, seg)
}

// AddPreset builds the preset's embedding text from its effect context,
// indexes it and stores the row.
func (s *Service) AddPreset(ctx context.Context, p catalog.Preset) (int64, error) {
	var effectText string
	if e, err := s.catalog.GetEffect(ctx, p.EffectPath); err == nil {
		effectText = e.Name + " " + e.Description
	}

	p.EmbeddingText = textproc.PresetText(p.Description, effectText)
	if p.EmbeddingText == "" {
		return 0, ErrNoEmbeddingText
	}

	embedID, dup, err := s.index.Add(ctx, index.KindPreset, p.EmbeddingText)
	if err != nil {
		return 0, fmt.Errorf("embed preset: %w", err)
	}
	if !dup {
		p.EmbedID = &embedID
	}
	return s.catalog.AddPreset(ctx, p)
}

// Import bulk-loads segments from a CSV file on the server.
func (s *Service) Import(ctx context.Context, path string) (importer.Result, error) {
	return s.imp.ImportFile(ctx, path)
}

// Reindex rebuilds the vector index from the catalog's stored embedding
// texts. Existing embed ids are discarded; rows whose text duplicates an
// earlier row end up unembedded, same as at insert time.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	s.index.Reset(ctx)
	if err := s.catalog.ClearEmbedIDs(ctx); err != nil {
		return 0, err
	}

	segments, err := s.catalog.ListSegments(ctx)
	if err != nil {
		return 0, err
	}
	for _, seg := range segments {
		text := seg.EmbeddingText
		if text == "" {
			text = textproc.SegmentText(seg.Description, "", "")
		}
		if text == "" {
			continue
		}
		embedID, dup, err := s.index.Add(ctx, index.KindSegment, text)
		if err != nil {
			return 0, fmt.Errorf("reindex segment %d: %w", seg.ID, err)
		}
		if dup {
			continue
		}
		if err := s.catalog.SetSegmentEmbedID(ctx, seg.ID, embedID); err != nil {
			return 0, err
		}
	}

	presets, err := s.catalog.ListPresets(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range presets {
		text := p.EmbeddingText
		if text == "" {
			text = textproc.PresetText(p.Description, "")
		}
		if text == "" {
			continue
		}
		embedID, dup, err := s.index.Add(ctx, index.KindPreset, text)
		if err != nil {
			return 0, fmt.Errorf("reindex preset %d: %w", p.ID, err)
		}
		if dup {
			continue
		}
		if err := s.catalog.SetPresetEmbedID(ctx, p.ID, embedID); err != nil {
			return 0, err
		}
	}

	n := s.index.Count()
	s.logger.Info(ctx, "index rebuilt", logger.Int("entries", n))
	return n, nil
}

// GetStats merges scheduler, catalog and index statistics. Scheduler keys
// stay top-level so /stats keeps its minimal shape.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	orchStats := s.orch.Stats()
	out := map[string]any{
		"active_niches":     orchStats.ActiveNiches,
		"queued_requests":   orchStats.QueuedRequests,
		"overlap_threshold": orchStats.OverlapThreshold,
		"tick_interval":     orchStats.TickIntervalSecs,
		"performance_id":    s.performanceID,
		"index_entries":     s.index.Count(),
	}

	if catStats, err := s.catalog.GetStats(ctx); err == nil {
		out["catalog"] = catStats
		metrics.UpdateCatalogDocuments(catStats.Recordings + catStats.Segments +
			catStats.Effects + catStats.Presets)
	} else {
		s.logger.Warn(ctx, "catalog stats unavailable", logger.Error(err))
	}
	return out
}

// Tick exposes a manual scheduler pass for tools and tests.
func (s *Service) Tick(ctx context.Context, now time.Time) int {
	return s.orch.Tick(ctx, now)
}

// Enqueue feeds a prebuilt event straight to the scheduler.
func (s *Service) Enqueue(e model.SoundEvent) error {
	return s.orch.Enqueue(e)
}
