package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	service "github.com/hibikido/hibikido/internal/app"
)

// InvokeHandler handles performer invocations.
type InvokeHandler struct {
	deps Dependencies
}

// NewInvokeHandler creates a new invoke handler.
func NewInvokeHandler(deps Dependencies) *InvokeHandler {
	return &InvokeHandler{deps: deps}
}

type invokeRequest struct {
	Text string `json:"text"`
}

type invokeResponse struct {
	InvocationID string `json:"invocation_id"`
	Queued       int    `json:"queued"`
}

// HandleInvoke handles POST /invoke requests. Admission is deferred: a 202
// means the hits are queued, not that anything sounds yet.
func (h *InvokeHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing text", ErrBadRequest))
		return
	}

	id, queued, err := h.deps.Invoke(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInvocation) {
			writeError(w, http.StatusBadRequest, "empty_invocation", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "invoke_failed", fmt.Errorf("%w: %w", ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusAccepted, invokeResponse{InvocationID: id, Queued: queued})
}
