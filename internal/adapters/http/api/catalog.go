package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hibikido/hibikido/internal/adapters/catalog"
)

// CatalogHandler handles catalog write requests.
type CatalogHandler struct {
	deps Dependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps Dependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

type recordingRequest struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

type segmentationRequest struct {
	ID          string          `json:"id"`
	Method      string          `json:"method"`
	Parameters  json.RawMessage `json:"parameters"`
	Description string          `json:"description"`
}

type effectRequest struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type segmentRequest struct {
	SourcePath     string   `json:"source_path"`
	SegmentationID string   `json:"segmentation_id"`
	Start          *float64 `json:"start"`
	End            *float64 `json:"end"`
	Description    string   `json:"description"`
	FreqLow        *float64 `json:"freq_low"`
	FreqHigh       *float64 `json:"freq_high"`
	DurationS      *float64 `json:"duration_s"`
}

type presetRequest struct {
	EffectPath  string          `json:"effect_path"`
	Parameters  json.RawMessage `json:"parameters"`
	Description string          `json:"description"`
}

type createdResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

// HandleRecordings handles POST /recordings.
func (h *CatalogHandler) HandleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing path", ErrBadRequest))
		return
	}

	if err := h.deps.AddRecording(r.Context(), req.Path, req.Description); err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Status: "created"})
}

// HandleSegmentations handles POST /segmentations.
func (h *CatalogHandler) HandleSegmentations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req segmentationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing id", ErrBadRequest))
		return
	}

	if err := h.deps.AddSegmentation(r.Context(), catalog.Segmentation{
		ID:          req.ID,
		Method:      req.Method,
		Parameters:  string(req.Parameters),
		Description: req.Description,
	}); err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Status: "created"})
}

// HandleEffects handles POST /effects.
func (h *CatalogHandler) HandleEffects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req effectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing path", ErrBadRequest))
		return
	}

	if err := h.deps.AddEffect(r.Context(), req.Path, req.Name, req.Description); err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Status: "created"})
}

// HandleSegments handles POST /segments.
func (h *CatalogHandler) HandleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing source_path", ErrBadRequest))
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing description", ErrBadRequest))
		return
	}

	seg := catalog.Segment{
		SourcePath:     req.SourcePath,
		SegmentationID: req.SegmentationID,
		WindowStart:    0,
		WindowEnd:      1,
		Description:    req.Description,
		FreqLow:        req.FreqLow,
		FreqHigh:       req.FreqHigh,
		DurationS:      req.DurationS,
	}
	if req.Start != nil {
		seg.WindowStart = *req.Start
	}
	if req.End != nil {
		seg.WindowEnd = *req.End
	}

	id, err := h.deps.AddSegment(r.Context(), seg)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Status: "created", ID: id})
}

// HandlePresets handles POST /presets.
func (h *CatalogHandler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.EffectPath) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing effect_path", ErrBadRequest))
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing description", ErrBadRequest))
		return
	}

	id, err := h.deps.AddPreset(r.Context(), catalog.Preset{
		EffectPath:  req.EffectPath,
		Parameters:  string(req.Parameters),
		Description: req.Description,
	})
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Status: "created", ID: id})
}

// writeCatalogError maps store errors onto HTTP statuses.
func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err)
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
