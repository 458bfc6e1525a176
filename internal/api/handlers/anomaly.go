package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pratik-mahalle/costlens/internal/api/dto"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/utils"
	"github.com/pratik-mahalle/costlens/internal/pkg/validator"
)

// AnomalyHandler serves detection runs and stored anomalies
type AnomalyHandler struct {
	service   anomaly.Service
	logger    *logger.Logger
	validator *validator.Validator
}

// NewAnomalyHandler creates a new anomaly handler
func NewAnomalyHandler(service anomaly.Service, log *logger.Logger, val *validator.Validator) *AnomalyHandler {
	return &AnomalyHandler{service: service, logger: log, validator: val}
}

// Detect runs anomaly detection over stored costs
// @Summary Detect cost anomalies
// @Description Run detection over the caller's stored daily costs and persist confirmed anomalies
// @Tags Anomalies
// @Accept json
// @Produce json
// @Param days query int false "Look-back window in days (default: 30, max: 365)"
// @Param threshold query number false "Detection sensitivity (default: 2.5)"
// @Param method query string false "zscore, isolation, density, decomposition or ensemble"
// @Param analyze_root_cause query bool false "Attach cloud context to each anomaly (default: true)"
// @Param provider query string false "Restrict to one provider"
// @Param service query string false "Restrict to one service"
// @Param request body dto.DetectAnomaliesRequest false "Utilization samples and custom events"
// @Success 200 {object} anomaly.DetectionResult "Detection result"
// @Failure 400 {object} utils.ErrorResponse "Invalid parameters"
// @Failure 422 {object} utils.ErrorResponse "Detection failed"
// @Security BearerAuth
// @Router /anomalies/detect [post]
func (h *AnomalyHandler) Detect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	days, err := queryInt(r, "days", 30)
	if err != nil || days < 1 {
		utils.WriteError(w, errors.BadRequest("days must be a positive integer"))
		return
	}
	threshold, err := queryFloat(r, "threshold", 0)
	if err != nil || threshold < 0 {
		utils.WriteError(w, errors.BadRequest("threshold must be a positive number"))
		return
	}
	rootCause, err := queryBool(r, "analyze_root_cause", true)
	if err != nil {
		utils.WriteError(w, errors.BadRequest("analyze_root_cause must be a boolean"))
		return
	}

	var body dto.DetectAnomaliesRequest
	if !decodeBody(w, r, h.validator, &body, true) {
		return
	}
	util, events := body.ToDomain()

	q := r.URL.Query()
	result, err := h.service.Detect(r.Context(), userID, anomaly.DetectRequest{
		Days:             days,
		Threshold:        threshold,
		Method:           anomaly.Method(q.Get("method")),
		AnalyzeRootCause: rootCause,
		Provider:         q.Get("provider"),
		Service:          q.Get("service"),
		Utilization:      util,
		CustomEvents:     events,
	})
	if err != nil {
		appErr := errors.As(err, "Failed to detect anomalies")
		if result != nil {
			appErr = appErr.WithDetails(result)
		}
		utils.WriteError(w, appErr)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, result)
}

// List returns stored anomalies with pagination and filtering
// @Summary List anomalies
// @Description Get a paginated list of stored cost anomalies with optional filtering
// @Tags Anomalies
// @Produce json
// @Param provider query string false "Filter by provider"
// @Param service query string false "Filter by service"
// @Param severity query string false "Filter by severity"
// @Param status query string false "Filter by status"
// @Param start_date query string false "Earliest cost date (YYYY-MM-DD)"
// @Param end_date query string false "Latest cost date (YYYY-MM-DD)"
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} utils.PaginatedResponse{data=[]dto.AnomalyDTO} "List of anomalies"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /anomalies [get]
func (h *AnomalyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	p := utils.ParsePaginationParams(r)

	start, err := queryDate(r, "start_date")
	if err != nil {
		utils.WriteError(w, errors.BadRequest("start_date must be YYYY-MM-DD"))
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		utils.WriteError(w, errors.BadRequest("end_date must be YYYY-MM-DD"))
		return
	}

	q := r.URL.Query()
	filter := anomaly.Filter{
		Provider:  q.Get("provider"),
		Service:   q.Get("service"),
		Severity:  q.Get("severity"),
		Status:    q.Get("status"),
		StartDate: start,
		EndDate:   end,
	}

	anomalies, total, err := h.service.List(r.Context(), userID, filter, p.PageSize, p.Offset)
	if err != nil {
		writeErr(w, err, "Failed to list anomalies")
		return
	}

	dtos := make([]dto.AnomalyDTO, len(anomalies))
	for i, a := range anomalies {
		dtos[i] = dto.FromAnomaly(a)
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dtos, p.Page, p.PageSize, total))
}

// GetSummary returns anomaly counts
// @Summary Anomaly summary
// @Description Counts of stored anomalies by severity and status
// @Tags Anomalies
// @Produce json
// @Success 200 {object} anomaly.Summary "Summary"
// @Security BearerAuth
// @Router /anomalies/summary [get]
func (h *AnomalyHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetSummary(r.Context(), userID)
	if err != nil {
		writeErr(w, err, "Failed to summarize anomalies")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, summary)
}

// Get returns a single anomaly by ID
// @Summary Get anomaly by ID
// @Tags Anomalies
// @Produce json
// @Param id path string true "Anomaly ID"
// @Success 200 {object} dto.AnomalyDTO "Anomaly details"
// @Failure 404 {object} utils.ErrorResponse "Anomaly not found"
// @Security BearerAuth
// @Router /anomalies/{id} [get]
func (h *AnomalyHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	a, err := h.service.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err, "Failed to get anomaly")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromAnomaly(a))
}

// UpdateStatus changes the workflow status of an anomaly
// @Summary Update anomaly status
// @Tags Anomalies
// @Accept json
// @Produce json
// @Param id path string true "Anomaly ID"
// @Param request body dto.UpdateStatusRequest true "New status"
// @Success 200 {object} utils.SuccessResponse "Status updated"
// @Failure 400 {object} utils.ErrorResponse "Invalid status"
// @Failure 404 {object} utils.ErrorResponse "Anomaly not found"
// @Security BearerAuth
// @Router /anomalies/{id}/status [patch]
func (h *AnomalyHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if !decodeBody(w, r, h.validator, &req, false) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.UpdateStatus(r.Context(), userID, id, req.Status); err != nil {
		writeErr(w, err, "Failed to update anomaly")
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Anomaly status updated", map[string]string{
		"id":     id,
		"status": req.Status,
	})
}

// Delete removes a stored anomaly
// @Summary Delete anomaly
// @Tags Anomalies
// @Param id path string true "Anomaly ID"
// @Success 204 "Anomaly deleted"
// @Failure 404 {object} utils.ErrorResponse "Anomaly not found"
// @Security BearerAuth
// @Router /anomalies/{id} [delete]
func (h *AnomalyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err, "Failed to delete anomaly")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
