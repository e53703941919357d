package testinvoke

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hibikido/hibikido/pkg/logger"
)

func mustRawJSON(s string) json.RawMessage {
	return json.RawMessage(s)
}

// Demo catalog: a few recordings with segments spread across the spectrum
// so scheduled playback exercises both admission and deferral, plus one
// effect with presets.
type seedRecording struct {
	path        string
	description string
	segments    []seedSegment
}

type seedSegment struct {
	description string
	start, end  float64
	freqLow     float64
	freqHigh    float64
	durationS   float64
}

var demoRecordings = []seedRecording{
	{
		path:        "demo/sea.wav",
		description: "north sea storm field session",
		segments: []seedSegment{
			{"deep rumbling wave impacts", 0.0, 0.3, 40, 250, 4.0},
			{"hissing foam retreat over shingle", 0.3, 0.5, 2000, 9000, 2.5},
			{"distant gull cries against wind", 0.5, 0.8, 1200, 4500, 1.8},
		},
	},
	{
		path:        "demo/forest.wav",
		description: "old growth forest dawn ambience",
		segments: []seedSegment{
			{"woodpecker tapping hollow trunk", 0.0, 0.2, 800, 3000, 1.2},
			{"low wind through high canopy", 0.2, 0.7, 80, 500, 5.0},
			{"songbird chorus bright morning", 0.7, 1.0, 2500, 8000, 3.0},
		},
	},
	{
		path:        "demo/workshop.wav",
		description: "metal workshop machinery session",
		segments: []seedSegment{
			{"grinding wheel metallic scrape", 0.0, 0.4, 300, 2500, 2.0},
			{"anvil strike ringing decay", 0.4, 0.6, 500, 6000, 1.5},
			{"furnace roar low pressure", 0.6, 1.0, 50, 300, 6.0},
		},
	},
}

var demoSegmentation = struct {
	id          string
	method      string
	parameters  string
	description string
}{
	id:          "demo-manual-v1",
	method:      "manual",
	parameters:  `{"annotator": "field-notes"}`,
	description: "hand annotated field recording passes",
}

type seedPreset struct {
	description string
	parameters  string
}

var demoEffect = struct {
	path        string
	name        string
	description string
	presets     []seedPreset
}{
	path:        "demo/fx/reverb",
	name:        "cathedral",
	description: "convolution reverb",
	presets: []seedPreset{
		{"long shimmering cathedral tail", "[0.9, 0.2, 0.7]"},
		{"short tight room reflection", "[0.2, 0.8, 0.1]"},
	},
}

// seedCatalog pushes the demo set over REST. Conflicts are fine: a rerun
// against the same database just reuses what is already there.
func seedCatalog(ctx context.Context, config *Config, stats *Stats) error {
	log := logger.Get()
	client := newHTTPClient(config.Timeout)

	post := func(path string, body any) (int, error) {
		resp, err := client.Post(ctx, config.BaseURL+path, body)
		if err != nil {
			return 0, err
		}
		_, _ = readResponseBody(resp)
		return resp.StatusCode, nil
	}

	accepted := func(status int) bool {
		return status == http.StatusCreated || status == http.StatusConflict
	}

	status, err := post("/segmentations", map[string]any{
		"id":          demoSegmentation.id,
		"method":      demoSegmentation.method,
		"parameters":  mustRawJSON(demoSegmentation.parameters),
		"description": demoSegmentation.description,
	})
	if err != nil {
		return fmt.Errorf("seed segmentation: %w", err)
	}
	if !accepted(status) {
		return fmt.Errorf("seed segmentation: unexpected status %d", status)
	}

	for _, rec := range demoRecordings {
		status, err := post("/recordings", map[string]string{
			"path": rec.path, "description": rec.description,
		})
		if err != nil {
			return fmt.Errorf("seed recording %s: %w", rec.path, err)
		}
		if !accepted(status) {
			return fmt.Errorf("seed recording %s: unexpected status %d", rec.path, status)
		}

		for _, seg := range rec.segments {
			status, err := post("/segments", map[string]any{
				"source_path":     rec.path,
				"segmentation_id": demoSegmentation.id,
				"description":     seg.description,
				"start":           seg.start,
				"end":             seg.end,
				"freq_low":        seg.freqLow,
				"freq_high":       seg.freqHigh,
				"duration_s":      seg.durationS,
			})
			if err != nil {
				return fmt.Errorf("seed segment %q: %w", seg.description, err)
			}
			if status == http.StatusCreated {
				stats.SeededSegments++
			}
		}
	}

	status, err = post("/effects", map[string]string{
		"path": demoEffect.path, "name": demoEffect.name, "description": demoEffect.description,
	})
	if err != nil {
		return fmt.Errorf("seed effect: %w", err)
	}
	if !accepted(status) {
		return fmt.Errorf("seed effect: unexpected status %d", status)
	}

	for _, p := range demoEffect.presets {
		status, err := post("/presets", map[string]any{
			"effect_path": demoEffect.path,
			"description": p.description,
			"parameters":  mustRawJSON(p.parameters),
		})
		if err != nil {
			return fmt.Errorf("seed preset %q: %w", p.description, err)
		}
		if status == http.StatusCreated {
			stats.SeededPresets++
		}
	}

	log.Info(ctx, "demo catalog seeded",
		logger.Int("segments", stats.SeededSegments),
		logger.Int("presets", stats.SeededPresets))
	return nil
}

// invocationPhrases cycle through the run; each should land in a different
// corner of the demo catalog.
var invocationPhrases = []string{
	"deep rumbling waves",
	"bright songbird morning",
	"metallic grinding scrape",
	"low wind canopy",
	"shimmering cathedral tail",
	"furnace roar pressure",
	"distant gulls in the wind",
	"anvil strike ringing",
}
