package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/services"
)

// ActorsHandler serves per-actor history and deep enrichment.
type ActorsHandler struct {
	report     services.DiscoveryReportService
	enrichment services.DeepEnrichmentService
	logger     *zap.Logger
}

// NewActorsHandler creates a new actors handler.
func NewActorsHandler(report services.DiscoveryReportService, enrichment services.DeepEnrichmentService, logger *zap.Logger) *ActorsHandler {
	return &ActorsHandler{
		report:     report,
		enrichment: enrichment,
		logger:     logger,
	}
}

// RegisterRoutes registers the actor endpoints.
func (h *ActorsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/actors/{actor}/stats", h.Stats)
	mux.HandleFunc("POST /api/actors/{actor}/enrich", h.Enrich)
	mux.HandleFunc("GET /api/enrichments", h.Runs)
}

// Stats handles GET /api/actors/{actor}/stats
func (h *ActorsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, err := services.NormalizeActor(r.PathValue("actor"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	stats, err := h.report.ActorStats(actor)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, stats, h.logger)
}

// Enrich handles POST /api/actors/{actor}/enrich. The fetch runs in the
// background; poll the stats endpoint for results.
func (h *ActorsHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	run, err := h.enrichment.Enrich(r.Context(), r.PathValue("actor"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusAccepted, run, h.logger)
}

// Runs handles GET /api/enrichments
func (h *ActorsHandler) Runs(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.enrichment.Runs(), h.logger)
}
