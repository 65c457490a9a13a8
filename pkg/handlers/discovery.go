package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/services"
)

// DiscoveryResponse combines the session status with the addresses found so far.
type DiscoveryResponse struct {
	Session   *services.SessionStatus `json:"session"`
	Addresses []services.AddressView  `json:"addresses"`
}

// DiscoveryHandler controls the discovery session.
type DiscoveryHandler struct {
	session services.DiscoverySessionService
	report  services.DiscoveryReportService
	logger  *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler.
func NewDiscoveryHandler(session services.DiscoverySessionService, report services.DiscoveryReportService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		session: session,
		report:  report,
		logger:  logger,
	}
}

// RegisterRoutes registers the discovery session endpoints.
func (h *DiscoveryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/discovery/start", h.Start)
	mux.HandleFunc("POST /api/discovery/stop", h.Stop)
	mux.HandleFunc("GET /api/discovery", h.Get)
	mux.HandleFunc("GET /api/discovery/addresses", h.Addresses)
}

// Start handles POST /api/discovery/start
func (h *DiscoveryHandler) Start(w http.ResponseWriter, r *http.Request) {
	status, err := h.session.Start(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeSuccess(w, http.StatusAccepted, status, h.logger)
}

// Stop handles POST /api/discovery/stop. Stopping an idle or stopped session succeeds.
func (h *DiscoveryHandler) Stop(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.session.Stop(models.StopManual), h.logger)
}

// Get handles GET /api/discovery
func (h *DiscoveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, DiscoveryResponse{
		Session:   h.session.Status(),
		Addresses: h.report.Addresses(),
	}, h.logger)
}

// Addresses handles GET /api/discovery/addresses
func (h *DiscoveryHandler) Addresses(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.report.Addresses(), h.logger)
}
