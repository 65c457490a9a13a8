package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/config"
)

// ConfigResponse contains the public runtime configuration for the frontend.
type ConfigResponse struct {
	Version          string `json:"version"`
	BaseURL          string `json:"base_url"`
	DiscoveryCap     int    `json:"discovery_cap"`
	PerSourceLimit   int    `json:"per_source_limit"`
	EnrichmentWindow string `json:"enrichment_window"`
	VerifierEnabled  bool   `json:"verifier_enabled"`
	MCPEnabled       bool   `json:"mcp_enabled"`
}

// ConfigHandler handles configuration requests.
type ConfigHandler struct {
	config *config.Config
	logger *zap.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(cfg *config.Config, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		logger: logger,
	}
}

// RegisterRoutes registers the config handler's routes on the given mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", h.Get)
}

// Get returns public configuration for the frontend.
// GET /api/config
// Relay URLs are not included; they may carry credentials. Use /api/sources.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Version:          h.config.Version,
		BaseURL:          h.config.BaseURL,
		DiscoveryCap:     h.config.Discovery.Cap,
		PerSourceLimit:   h.config.Discovery.PerSourceLimit,
		EnrichmentWindow: h.config.Discovery.EnrichmentWindow.String(),
		VerifierEnabled:  h.config.Verifier.Enabled,
		MCPEnabled:       h.config.MCPEnabled,
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode config response", zap.Error(err))
	}
}
