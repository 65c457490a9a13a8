package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/services"
)

// AddSourceRequest is the body of POST /api/sources.
type AddSourceRequest struct {
	URL string `json:"url"`
}

// SourcesHandler manages the relay registry.
type SourcesHandler struct {
	registry services.SourceRegistry
	logger   *zap.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(registry services.SourceRegistry, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the relay registry endpoints.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sources", h.List)
	mux.HandleFunc("POST /api/sources", h.Add)
	mux.HandleFunc("DELETE /api/sources", h.Remove)
}

// List handles GET /api/sources
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.registry.List(), h.logger)
}

// Add handles POST /api/sources. The relay is probed before it is registered.
func (h *SourcesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddSourceRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing_url", "Relay URL is required", h.logger)
		return
	}

	source, err := h.registry.Add(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusCreated, source, h.logger)
}

// Remove handles DELETE /api/sources?url=...
func (h *SourcesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing_url", "Relay URL is required", h.logger)
		return
	}

	if err := h.registry.Remove(url); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, h.registry.List(), h.logger)
}
