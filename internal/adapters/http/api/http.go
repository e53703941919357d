// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
	"github.com/hibikido/hibikido/internal/adapters/importer"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the application service.
type Dependencies interface {
	// Invoke runs a performer phrase through search and enqueues the hits.
	Invoke(ctx context.Context, text string) (invocationID string, queued int, err error)

	// Catalog writes. Segment and preset adds embed the text and return
	// the new row id.
	AddRecording(ctx context.Context, path, description string) error
	AddSegmentation(ctx context.Context, s catalog.Segmentation) error
	AddEffect(ctx context.Context, path, name, description string) error
	AddSegment(ctx context.Context, s catalog.Segment) (int64, error)
	AddPreset(ctx context.Context, p catalog.Preset) (int64, error)

	// Bulk operations.
	Import(ctx context.Context, path string) (importer.Result, error)
	Reindex(ctx context.Context) (int, error)
}

// StatsProvider exposes the combined service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	invokeHandler  *InvokeHandler
	catalogHandler *CatalogHandler
	adminHandler   *AdminHandler
	statsHandler   *StatsHandler
	healthHandler  *HealthHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		invokeHandler:  NewInvokeHandler(deps),
		catalogHandler: NewCatalogHandler(deps),
		adminHandler:   NewAdminHandler(deps),
		statsHandler:   NewStatsHandler(statsProvider),
		healthHandler:  NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/invoke", MetricsMiddleware(s.invokeHandler.HandleInvoke, "invoke"))
	mux.HandleFunc("/recordings", MetricsMiddleware(s.catalogHandler.HandleRecordings, "recordings"))
	mux.HandleFunc("/segmentations", MetricsMiddleware(s.catalogHandler.HandleSegmentations, "segmentations"))
	mux.HandleFunc("/effects", MetricsMiddleware(s.catalogHandler.HandleEffects, "effects"))
	mux.HandleFunc("/segments", MetricsMiddleware(s.catalogHandler.HandleSegments, "segments"))
	mux.HandleFunc("/presets", MetricsMiddleware(s.catalogHandler.HandlePresets, "presets"))
	mux.HandleFunc("/import", MetricsMiddleware(s.adminHandler.HandleImport, "import"))
	mux.HandleFunc("/reindex", MetricsMiddleware(s.adminHandler.HandleReindex, "reindex"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
