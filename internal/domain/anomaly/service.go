package anomaly

import (
	"context"
	"time"
)

// DetectRequest describes a detection run over stored cost data
type DetectRequest struct {
	Days             int
	Threshold        float64
	Method           Method
	AnalyzeRootCause bool
	Provider         string
	Service          string
	Utilization      []UtilizationObservation
	CustomEvents     []CustomEvent
}

// Window returns the date range covered by the request ending at now
func (r DetectRequest) Window(now time.Time) (time.Time, time.Time) {
	end := now.UTC()
	return end.AddDate(0, 0, -r.Days), end
}

// Service defines the interface for anomaly business logic
type Service interface {
	// Detect runs detection over the user's stored costs and persists confirmed anomalies
	Detect(ctx context.Context, userID int64, req DetectRequest) (*DetectionResult, error)

	// GetByID retrieves an anomaly by ID
	GetByID(ctx context.Context, userID int64, id string) (*Anomaly, error)

	// List retrieves anomalies with filters and pagination
	List(ctx context.Context, userID int64, filter Filter, limit, offset int) ([]*Anomaly, int64, error)

	// UpdateStatus updates anomaly status
	UpdateStatus(ctx context.Context, userID int64, id string, status string) error

	// Delete deletes an anomaly record
	Delete(ctx context.Context, userID int64, id string) error

	// GetSummary gets anomaly counts by severity and status
	GetSummary(ctx context.Context, userID int64) (*Summary, error)
}
