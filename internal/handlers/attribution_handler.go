package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/talenthub/backend/internal/services"
)

// AttributionHandler exposes the sales-attribution surface for admins.
type AttributionHandler struct {
	attribution *services.AttributionService
	validator   *services.ValidationHelper
}

func NewAttributionHandler(attribution *services.AttributionService) *AttributionHandler {
	return &AttributionHandler{
		attribution: attribution,
		validator:   services.NewValidationHelper(),
	}
}

// GetAttribution resolves the effective sales owner for a company
// @Summary Get company sales attribution
// @Tags attribution
// @Produce json
// @Security BearerAuth
// @Param companyId path int true "Company ID"
// @Success 200 {object} models.Attribution
// @Failure 404 {object} services.ErrorResponse
// @Router /attribution/{companyId} [get]
func (h *AttributionHandler) GetAttribution(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(chi.URLParam(r, "companyId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid company id", http.StatusBadRequest, nil)
		return
	}

	attribution, err := h.attribution.GetAttribution(companyID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attribution)
}

// LockAttribution locks attribution at lead conversion
// @Summary Lock company sales attribution
// @Tags attribution
// @Produce json
// @Security BearerAuth
// @Param companyId path int true "Company ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} services.ErrorResponse
// @Router /attribution/{companyId}/lock [post]
func (h *AttributionHandler) LockAttribution(w http.ResponseWriter, r *http.Request) {
	actorID, ok := r.Context().Value("userID").(int64)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	companyID, err := strconv.ParseInt(chi.URLParam(r, "companyId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid company id", http.StatusBadRequest, nil)
		return
	}

	if err := h.attribution.LockAttribution(companyID, actorID); err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "locked"})
}

type overrideRequest struct {
	NewConsultantID int64  `json:"new_consultant_id" validate:"required"`
	Reason          string `json:"reason" validate:"required,min=5"`
}

// OverrideAttribution replaces the sales owner with an audit trail entry
// @Summary Override company sales attribution
// @Tags attribution
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param companyId path int true "Company ID"
// @Param request body overrideRequest true "Override request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /attribution/{companyId}/override [post]
func (h *AttributionHandler) OverrideAttribution(w http.ResponseWriter, r *http.Request) {
	actorID, ok := r.Context().Value("userID").(int64)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	companyID, err := strconv.ParseInt(chi.URLParam(r, "companyId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid company id", http.StatusBadRequest, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req overrideRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.attribution.OverrideAttribution(companyID, req.NewConsultantID, actorID, req.Reason); err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "overridden"})
}

// GetAuditTrail lists the attribution history for a company
// @Summary Get attribution audit trail
// @Tags attribution
// @Produce json
// @Security BearerAuth
// @Param companyId path int true "Company ID"
// @Success 200 {array} models.AttributionAudit
// @Failure 400 {object} services.ErrorResponse
// @Router /attribution/{companyId}/audit [get]
func (h *AttributionHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(chi.URLParam(r, "companyId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid company id", http.StatusBadRequest, nil)
		return
	}

	entries, err := h.attribution.GetAuditTrail(companyID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
