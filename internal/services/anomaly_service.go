package services

import (
	"context"
	"time"

	"github.com/pratik-mahalle/costlens/internal/detector"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
)

// MaxLookbackDays bounds the detection window
const MaxLookbackDays = 365

// AnomalyService implements anomaly.Service
type AnomalyService struct {
	repo     anomaly.Repository
	costs    cost.Repository
	detector *detector.Detector
	logger   *logger.Logger
	now      func() time.Time
}

// NewAnomalyService creates a new anomaly service
func NewAnomalyService(repo anomaly.Repository, costs cost.Repository, det *detector.Detector, log *logger.Logger) *AnomalyService {
	return &AnomalyService{
		repo:     repo,
		costs:    costs,
		detector: det,
		logger:   log.Component("anomaly_service"),
		now:      time.Now,
	}
}

// Detect loads the user's costs for the requested window, runs the detector and
// stores every confirmed anomaly. A failed run returns the failure envelope together
// with a DetectionFailed error.
func (s *AnomalyService) Detect(ctx context.Context, userID int64, req anomaly.DetectRequest) (*anomaly.DetectionResult, error) {
	cfg := s.detector.Config()
	if req.Days <= 0 {
		req.Days = 30
	}
	if req.Days > MaxLookbackDays {
		return nil, errors.BadRequest("days must not exceed 365")
	}
	if req.Method == "" {
		req.Method = cfg.DefaultMethod
	}
	if !req.Method.IsValid() {
		return nil, errors.BadRequest("Unsupported detection method: " + string(req.Method))
	}
	if req.Threshold < 0 {
		return nil, errors.BadRequest("threshold must be positive")
	}

	start, end := req.Window(s.now())
	rows, err := s.costs.GetCostsByDateRange(ctx, userID, cost.Filter{Provider: req.Provider, ServiceName: req.Service}, start, end)
	if err != nil {
		return nil, errors.As(err, "Failed to load cost data")
	}

	began := time.Now()
	result := s.detector.Detect(ctx, detector.Request{
		Observations:     cost.Observations(rows),
		Method:           req.Method,
		Threshold:        req.Threshold,
		AnalyzeRootCause: req.AnalyzeRootCause,
		Utilization:      req.Utilization,
		CustomEvents:     req.CustomEvents,
	})
	s.record(result, time.Since(began))

	log := s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"run_id":  result.RunID,
		"method":  result.DetectionMethod,
	})

	if !result.Success {
		log.Warn("Anomaly detection failed: " + result.Error)
		return &result, errors.DetectionFailed(result.Error)
	}

	created := 0
	for _, rec := range result.Anomalies {
		a, err := anomaly.FromRecord(userID, rec, result.DetectionTimestamp)
		if err != nil {
			return &result, errors.Internal("Failed to encode cloud context", err)
		}
		isNew, err := s.repo.Upsert(ctx, a)
		if err != nil {
			log.ErrorWithErr(err, "Failed to store anomaly")
			return &result, errors.As(err, "Failed to store anomaly")
		}
		if isNew {
			created++
			metrics.RecordAnomaly(a.Severity, a.Provider)
		}
	}

	log.WithFields(map[string]interface{}{
		"anomalies": result.AnomalyCount,
		"created":   created,
		"window":    start.Format("2006-01-02") + ".." + end.Format("2006-01-02"),
	}).Info("Anomaly detection stored")

	return &result, nil
}

func (s *AnomalyService) record(result anomaly.DetectionResult, took time.Duration) {
	outcome := "success"
	switch {
	case !result.Success:
		outcome = "failure"
	case result.Note != "":
		outcome = result.Note
	}
	metrics.RecordDetectionRun(string(result.DetectionMethod), outcome, took)
	for _, fb := range result.Fallbacks {
		metrics.RecordMethodFallback(string(fb.Method))
	}
}

// GetByID retrieves an anomaly by ID
func (s *AnomalyService) GetByID(ctx context.Context, userID int64, id string) (*anomaly.Anomaly, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// List retrieves anomalies with filters and pagination
func (s *AnomalyService) List(ctx context.Context, userID int64, filter anomaly.Filter, limit, offset int) ([]*anomaly.Anomaly, int64, error) {
	return s.repo.ListWithPagination(ctx, userID, filter, limit, offset)
}

// UpdateStatus updates anomaly status
func (s *AnomalyService) UpdateStatus(ctx context.Context, userID int64, id string, status string) error {
	if !anomaly.IsValidStatus(status) {
		return errors.BadRequest("Invalid status: " + status)
	}

	if err := s.repo.UpdateStatus(ctx, userID, id, status); err != nil {
		if !errors.IsNotFound(err) {
			s.logger.ErrorWithErr(err, "Failed to update anomaly status")
		}
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"anomaly_id": id,
		"user_id":    userID,
		"status":     status,
	}).Info("Anomaly status updated")

	return nil
}

// Delete deletes an anomaly record
func (s *AnomalyService) Delete(ctx context.Context, userID int64, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if !errors.IsNotFound(err) {
			s.logger.ErrorWithErr(err, "Failed to delete anomaly")
		}
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"anomaly_id": id,
		"user_id":    userID,
	}).Info("Anomaly deleted")

	return nil
}

// GetSummary gets anomaly counts by severity and status
func (s *AnomalyService) GetSummary(ctx context.Context, userID int64) (*anomaly.Summary, error) {
	bySeverity, err := s.repo.CountBy(ctx, userID, "severity")
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountBy(ctx, userID, "status")
	if err != nil {
		return nil, err
	}

	summary := &anomaly.Summary{BySeverity: bySeverity, ByStatus: byStatus}
	for _, n := range byStatus {
		summary.Total += n
	}
	return summary, nil
}
