package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pratik-mahalle/costlens/internal/api/dto"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/utils"
	"github.com/pratik-mahalle/costlens/internal/pkg/validator"
)

// CostHandler handles cost ingestion and queries
type CostHandler struct {
	costService cost.Service
	logger      *logger.Logger
	validator   *validator.Validator
	now         func() time.Time
}

// NewCostHandler creates a new cost handler
func NewCostHandler(costService cost.Service, log *logger.Logger, val *validator.Validator) *CostHandler {
	return &CostHandler{
		costService: costService,
		logger:      log,
		validator:   val,
		now:         time.Now,
	}
}

// Ingest handles POST /api/v1/costs
// @Summary Ingest daily costs
// @Description Store a batch of daily cost rows. Rows are upserted per provider, service, region, resource and date.
// @Tags Costs
// @Accept json
// @Produce json
// @Param request body dto.IngestCostsRequest true "Cost rows"
// @Success 201 {object} dto.IngestCostsResponse "Rows stored"
// @Failure 400 {object} utils.ErrorResponse "Validation error"
// @Security BearerAuth
// @Router /costs [post]
func (h *CostHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.IngestCostsRequest
	if !decodeBody(w, r, h.validator, &req, false) {
		return
	}

	n, err := h.costService.Ingest(r.Context(), userID, req.ToDomain())
	if err != nil {
		writeErr(w, err, "Failed to ingest costs")
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, dto.IngestCostsResponse{Stored: n})
}

// List handles GET /api/v1/costs
// @Summary List stored costs
// @Tags Costs
// @Produce json
// @Param provider query string false "Filter by provider"
// @Param service query string false "Filter by service"
// @Param start_date query string false "YYYY-MM-DD (default: 30 days ago)"
// @Param end_date query string false "YYYY-MM-DD (default: today)"
// @Success 200 {array} dto.CostDTO "Cost rows"
// @Security BearerAuth
// @Router /costs [get]
func (h *CostHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, err := dateRange(r, h.now(), 30)
	if err != nil {
		utils.WriteError(w, errors.BadRequest("Dates must be YYYY-MM-DD"))
		return
	}

	rows, err := h.costService.GetCosts(r.Context(), userID, costFilter(r), start, end)
	if err != nil {
		writeErr(w, err, "Failed to list costs")
		return
	}

	out := make([]dto.CostDTO, 0, len(rows))
	for _, c := range rows {
		out = append(out, dto.FromCost(c))
	}
	utils.WriteSuccess(w, http.StatusOK, out)
}

// GetSummary handles GET /api/v1/costs/summary
// @Summary Summarize stored costs
// @Tags Costs
// @Produce json
// @Param provider query string false "Filter by provider"
// @Param start_date query string false "YYYY-MM-DD (default: 30 days ago)"
// @Param end_date query string false "YYYY-MM-DD (default: today)"
// @Success 200 {object} dto.CostSummaryResponse "Cost summary"
// @Security BearerAuth
// @Router /costs/summary [get]
func (h *CostHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, err := dateRange(r, h.now(), 30)
	if err != nil {
		utils.WriteError(w, errors.BadRequest("Dates must be YYYY-MM-DD"))
		return
	}

	summary, err := h.costService.GetSummary(r.Context(), userID, costFilter(r), start, end)
	if err != nil {
		writeErr(w, err, "Failed to summarize costs")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.CostSummaryResponse{
		TotalCost:  summary.TotalCost,
		Currency:   summary.Currency,
		StartDate:  start.Format(dto.DateLayout),
		EndDate:    end.Format(dto.DateLayout),
		ByService:  summary.ByService,
		ByProvider: summary.ByProvider,
	})
}

// Sync handles POST /api/v1/costs/sync/{provider}
// @Summary Sync provider costs
// @Description Pull the last days of billing data from a configured provider
// @Tags Costs
// @Produce json
// @Param provider path string true "aws, gcp or azure"
// @Param days query int false "Look-back in days (default: 30)"
// @Success 200 {object} dto.SyncResultDTO "Sync result"
// @Failure 400 {object} utils.ErrorResponse "Unknown or unconfigured provider"
// @Failure 502 {object} utils.ErrorResponse "Provider API error"
// @Security BearerAuth
// @Router /costs/sync/{provider} [post]
func (h *CostHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days", 30)
	if err != nil || days < 1 || days > 365 {
		utils.WriteError(w, errors.BadRequest("days must be between 1 and 365"))
		return
	}

	res, err := h.costService.SyncCosts(r.Context(), userID, chi.URLParam(r, "provider"), days)
	if err != nil {
		writeErr(w, err, "Failed to sync costs")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.FromSyncResult(res))
}

// SyncAll handles POST /api/v1/costs/sync
// @Summary Sync all configured providers
// @Tags Costs
// @Produce json
// @Param days query int false "Look-back in days (default: 30)"
// @Success 200 {array} dto.SyncResultDTO "Sync results"
// @Security BearerAuth
// @Router /costs/sync [post]
func (h *CostHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days", 30)
	if err != nil || days < 1 || days > 365 {
		utils.WriteError(w, errors.BadRequest("days must be between 1 and 365"))
		return
	}

	results, err := h.costService.SyncAllProviders(r.Context(), userID, days)
	if err != nil {
		writeErr(w, err, "Failed to sync costs")
		return
	}

	out := make([]dto.SyncResultDTO, 0, len(results))
	for _, res := range results {
		out = append(out, dto.FromSyncResult(res))
	}
	utils.WriteSuccess(w, http.StatusOK, out)
}

func costFilter(r *http.Request) cost.Filter {
	q := r.URL.Query()
	return cost.Filter{
		Provider:    q.Get("provider"),
		ServiceName: q.Get("service"),
		Region:      q.Get("region"),
	}
}
