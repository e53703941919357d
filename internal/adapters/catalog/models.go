package catalog

import "time"

// Recording is a source audio file known to the catalog. The path is the
// unique identifier; the catalog never touches the file itself.
type Recording struct {
	Path        string    `json:"path"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Segmentation describes one segmentation method or run that produced
// segments.
type Segmentation struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"`
	Parameters  string    `json:"parameters"` // JSON blob, opaque to the catalog
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Segment is a time window inside a recording. WindowStart and WindowEnd
// are normalized positions in [0,1]. EmbedID links the segment to its
// vector index entry; nil means not yet embedded. FreqLow/FreqHigh/DurationS
// feed the scheduler; nil falls back to configured defaults at invoke time.
type Segment struct {
	ID             int64     `json:"id"`
	SourcePath     string    `json:"source_path"`
	SegmentationID string    `json:"segmentation_id"`
	WindowStart    float64   `json:"start"`
	WindowEnd      float64   `json:"end"`
	Description    string    `json:"description"`
	EmbeddingText  string    `json:"embedding_text"`
	EmbedID        *int64    `json:"embed_id,omitempty"`
	FreqLow        *float64  `json:"freq_low,omitempty"`
	FreqHigh       *float64  `json:"freq_high,omitempty"`
	DurationS      *float64  `json:"duration_s,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Effect is an external processing unit, identified by path.
type Effect struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Preset is a stored parameter set for an effect.
type Preset struct {
	ID            int64     `json:"id"`
	EffectPath    string    `json:"effect_path"`
	Parameters    string    `json:"parameters"` // JSON array, passed through
	Description   string    `json:"description"`
	EmbeddingText string    `json:"embedding_text"`
	EmbedID       *int64    `json:"embed_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Performance is one live session; invocations accumulate against it.
type Performance struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Invocation records a single performer phrase within a performance.
type Invocation struct {
	ID            int64     `json:"id"`
	PerformanceID string    `json:"performance_id"`
	Text          string    `json:"text"`
	TimeOffsetS   float64   `json:"time"`
	SegmentID     *int64    `json:"segment_id,omitempty"`
	EffectPath    *string   `json:"effect_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats counts catalog contents per collection, split into total rows and
// rows that already carry an index entry where that distinction exists.
type Stats struct {
	Recordings       int `json:"recordings"`
	Segments         int `json:"segments"`
	SegmentsEmbedded int `json:"segments_embedded"`
	Effects          int `json:"effects"`
	Presets          int `json:"presets"`
	PresetsEmbedded  int `json:"presets_embedded"`
	Performances     int `json:"performances"`
	Segmentations    int `json:"segmentations"`
}
