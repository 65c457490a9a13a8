package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/services"
)

// VerifyAddressRequest is the body of POST /api/verifications.
type VerifyAddressRequest struct {
	Address string `json:"address"`
}

// VerificationsHandler exposes payment address checks.
type VerificationsHandler struct {
	verifier services.AddressVerificationService
	logger   *zap.Logger
}

// NewVerificationsHandler creates a new verifications handler.
func NewVerificationsHandler(verifier services.AddressVerificationService, logger *zap.Logger) *VerificationsHandler {
	return &VerificationsHandler{
		verifier: verifier,
		logger:   logger,
	}
}

// RegisterRoutes registers the verification endpoints.
func (h *VerificationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/verifications", h.List)
	mux.HandleFunc("POST /api/verifications", h.Verify)
	mux.HandleFunc("GET /api/verifications/tasks", h.Tasks)
}

// List handles GET /api/verifications
func (h *VerificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.verifier.List(), h.logger)
}

// Verify handles POST /api/verifications and checks the address synchronously.
func (h *VerificationsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyAddressRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.Address)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, result, h.logger)
}

// Tasks handles GET /api/verifications/tasks
func (h *VerificationsHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.verifier.Tasks(), h.logger)
}
