package dto

import (
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// DateLayout is the calendar date format used across the API
const DateLayout = "2006-01-02"

// AnomalyDTO represents a stored cost anomaly in API responses
type AnomalyDTO struct {
	ID                 string          `json:"id"`
	Provider           string          `json:"provider"`
	Service            string          `json:"service"`
	ResourceID         string          `json:"resource_id,omitempty"`
	CostDate           string          `json:"cost_date"`
	Cost               float64         `json:"cost"`
	BaselineCost       float64         `json:"baseline_cost"`
	CostDifference     float64         `json:"cost_difference"`
	PercentageIncrease float64         `json:"percentage_increase"`
	DetectionMethod    string          `json:"detection_method"`
	MethodsAgreement   int             `json:"methods_agreement"`
	MethodsTotal       int             `json:"methods_total"`
	Confidence         float64         `json:"confidence"`
	AnomalyType        string          `json:"anomaly_type"`
	Severity           string          `json:"severity"`
	RootCause          string          `json:"root_cause,omitempty"`
	CloudContext       json.RawMessage `json:"cloud_context,omitempty"`
	Status             string          `json:"status"`
	DetectedAt         time.Time       `json:"detected_at"`
}

// FromAnomaly maps a stored anomaly into its response shape
func FromAnomaly(a *anomaly.Anomaly) AnomalyDTO {
	return AnomalyDTO{
		ID:                 a.ID,
		Provider:           a.Provider,
		Service:            a.Service,
		ResourceID:         a.ResourceID,
		CostDate:           a.CostDate.UTC().Format(DateLayout),
		Cost:               a.Cost,
		BaselineCost:       a.BaselineCost,
		CostDifference:     a.CostDifference,
		PercentageIncrease: a.PercentageIncrease,
		DetectionMethod:    a.DetectionMethod,
		MethodsAgreement:   a.MethodsAgreement,
		MethodsTotal:       a.MethodsTotal,
		Confidence:         a.Confidence,
		AnomalyType:        a.AnomalyType,
		Severity:           a.Severity,
		RootCause:          a.RootCause,
		CloudContext:       a.CloudContext,
		Status:             a.Status,
		DetectedAt:         a.DetectedAt,
	}
}

// UtilizationDTO is one utilization sample in a detect request
type UtilizationDTO struct {
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	Provider   string  `json:"provider,omitempty"`
	Service    string  `json:"service,omitempty"`
	ResourceID string  `json:"resource_id,omitempty"`
	Metric     string  `json:"metric" validate:"required"`
	Value      float64 `json:"value"`
}

// CustomEventDTO is one caller-supplied event in a detect request
type CustomEventDTO struct {
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description,omitempty" validate:"max=2000"`
	Services    []string `json:"services,omitempty"`
}

// DetectAnomaliesRequest is the optional body of a detect request
type DetectAnomaliesRequest struct {
	Utilization  []UtilizationDTO `json:"utilization,omitempty" validate:"max=10000,dive"`
	CustomEvents []CustomEventDTO `json:"custom_events,omitempty" validate:"max=1000,dive"`
}

// ToDomain converts the body into detector inputs. Dates are assumed validated.
func (r DetectAnomaliesRequest) ToDomain() ([]anomaly.UtilizationObservation, []anomaly.CustomEvent) {
	var util []anomaly.UtilizationObservation
	for _, u := range r.Utilization {
		d, _ := time.Parse(DateLayout, u.Date)
		util = append(util, anomaly.UtilizationObservation{
			Date:       d,
			Provider:   u.Provider,
			Service:    u.Service,
			ResourceID: u.ResourceID,
			Metric:     u.Metric,
			Value:      u.Value,
		})
	}
	var events []anomaly.CustomEvent
	for _, e := range r.CustomEvents {
		d, _ := time.Parse(DateLayout, e.Date)
		events = append(events, anomaly.CustomEvent{
			Date:        d,
			Name:        e.Name,
			Description: e.Description,
			Services:    e.Services,
		})
	}
	return util, events
}

// UpdateStatusRequest represents an anomaly status change
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=detected acknowledged resolved ignored"`
}
