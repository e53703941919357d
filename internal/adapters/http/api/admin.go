package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AdminHandler handles bulk catalog operations.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type importRequest struct {
	Path string `json:"path"`
}

type reindexResponse struct {
	Indexed int `json:"indexed"`
}

// HandleImport handles POST /import. The body names a server-local CSV path;
// per-row failures come back in the result, not as an HTTP error.
func (h *AdminHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing path", ErrBadRequest))
		return
	}

	res, err := h.deps.Import(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "import_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReindex handles POST /reindex: rebuilds the vector index from the
// catalog's embedding texts.
func (h *AdminHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	n, err := h.deps.Reindex(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reindex_failed", fmt.Errorf("%w: %w", ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{Indexed: n})
}
