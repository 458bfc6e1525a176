package anomaly

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Method identifies an anomaly detection strategy
type Method string

// Detection methods
const (
	MethodZScore        Method = "zscore"
	MethodIsolation     Method = "isolation"
	MethodDensity       Method = "density"
	MethodDecomposition Method = "decomposition"
	MethodEnsemble      Method = "ensemble"
)

// IsValid reports whether m is a known detection method
func (m Method) IsValid() bool {
	switch m {
	case MethodZScore, MethodIsolation, MethodDensity, MethodDecomposition, MethodEnsemble:
		return true
	}
	return false
}

// UnknownLabel is used when an observation carries no service or provider
const UnknownLabel = "Unknown"

// CostObservation is a single daily cost entry supplied by the caller.
// A null Cost is imputed with the batch median during normalization.
type CostObservation struct {
	Date       time.Time           `json:"date"`
	Cost       decimal.NullDecimal `json:"cost"`
	Service    string              `json:"service"`
	Provider   string              `json:"provider"`
	ResourceID string              `json:"resource_id,omitempty"`
}

// NewCostObservation builds an observation with a known cost
func NewCostObservation(date time.Time, cost float64, service, provider string) CostObservation {
	return CostObservation{
		Date:     date,
		Cost:     decimal.NewNullDecimal(decimal.NewFromFloat(cost)),
		Service:  service,
		Provider: provider,
	}
}

// UtilizationObservation is a resource utilization sample used to correlate anomalies
type UtilizationObservation struct {
	Date       time.Time `json:"date" yaml:"date"`
	Provider   string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Service    string    `json:"service,omitempty" yaml:"service,omitempty"`
	ResourceID string    `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Metric     string    `json:"metric" yaml:"metric"`
	Value      float64   `json:"value" yaml:"value"`
}

// CustomEvent is a caller-supplied event (deployment, migration, promotion...) that may explain an anomaly
type CustomEvent struct {
	Date        time.Time `json:"date" yaml:"date"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Services    []string  `json:"services,omitempty" yaml:"services,omitempty"`
}

// PatternType classifies the local shape of a cost change
type PatternType string

// Pattern types
const (
	PatternSuddenIncrease PatternType = "sudden_increase"
	PatternStepIncrease   PatternType = "step_increase"
	PatternTemporarySpike PatternType = "temporary_spike"
	PatternCyclicalSpike  PatternType = "cyclical_spike"
)

// Timeline describes how long a billing event typically lasts
type Timeline string

// Timelines
const (
	TimelineTemporary  Timeline = "temporary"
	TimelinePersistent Timeline = "persistent"
	TimelineRecurring  Timeline = "recurring"
)

// EventPattern is a known cloud billing event in the static taxonomy
type EventPattern struct {
	Provider           string      `json:"provider"`
	EventName          string      `json:"event_name"`
	PatternType        PatternType `json:"pattern_type"`
	ApplicableServices []string    `json:"applicable_services"`
	Timeline           Timeline    `json:"timeline"`
	Description        string      `json:"description"`
}

// Cause confidence levels, strongest first
const (
	ConfidenceVeryHigh = "very high"
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
)

// Cause sources
const (
	SourceCustomEvent     = "custom_event"
	SourceCloudEvent      = "cloud_event"
	SourceResourcePattern = "resource_pattern"
)

// ProbableCause is one ranked root cause hypothesis
type ProbableCause struct {
	Cause       string   `json:"cause"`
	Description string   `json:"description,omitempty"`
	Confidence  string   `json:"confidence"`
	Source      string   `json:"source"`
	Timeline    Timeline `json:"timeline,omitempty"`
	Metrics     []string `json:"metrics,omitempty"`
}

// Related service signal strengths
const (
	CorrelationStrong   = "strong"
	CorrelationModerate = "moderate"
)

// RelatedService is another service whose cost moved on the same date
type RelatedService struct {
	Service       string  `json:"service"`
	Provider      string  `json:"provider"`
	Cost          float64 `json:"cost"`
	PriorAverage  float64 `json:"prior_average"`
	ChangePercent float64 `json:"change_percent"`
	Correlation   string  `json:"correlation"`
}

// CloudContext bundles the explanation attached to a confirmed anomaly
type CloudContext struct {
	ProbableCauses        []ProbableCause  `json:"probable_causes"`
	PatternType           PatternType      `json:"pattern_type,omitempty"`
	AffectedResources     []string         `json:"affected_resources"`
	RelatedServices       []RelatedService `json:"related_services"`
	MitigationSuggestions []string         `json:"mitigation_suggestions"`
}

// EmptyCloudContext returns a context with no findings
func EmptyCloudContext() *CloudContext {
	return &CloudContext{
		ProbableCauses:        []ProbableCause{},
		AffectedResources:     []string{},
		RelatedServices:       []RelatedService{},
		MitigationSuggestions: []string{},
	}
}

// AnomalyRecord is a confirmed anomaly produced by a detection run
type AnomalyRecord struct {
	Date               time.Time     `json:"date"`
	Service            string        `json:"service"`
	Provider           string        `json:"provider"`
	ResourceID         string        `json:"resource_id,omitempty"`
	Cost               float64       `json:"cost"`
	BaselineCost       float64       `json:"baseline_cost"`
	CostDifference     float64       `json:"cost_difference"`
	PercentageIncrease float64       `json:"percentage_increase"`
	Score              float64       `json:"score"`
	DetectionMethod    string        `json:"detection_method"`
	MethodsAgreement   int           `json:"methods_agreement"`
	MethodsTotal       int           `json:"methods_total"`
	Confidence         float64       `json:"confidence"`
	Severity           string        `json:"severity"`
	AnomalyType        string        `json:"anomaly_type"`
	RootCause          string        `json:"root_cause,omitempty"`
	CloudContext       *CloudContext `json:"cloud_context,omitempty"`
}

// MethodFallback records a method slot that could not run its own strategy
type MethodFallback struct {
	Method   Method `json:"method"`
	Fallback Method `json:"fallback,omitempty"`
	Reason   string `json:"reason"`
}

// Method run statuses
const (
	MethodStatusOK       = "ok"
	MethodStatusFallback = "fallback"
	MethodStatusFailed   = "failed"
	MethodStatusSkipped  = "skipped"
)

// MethodStat summarizes one method slot of a detection run
type MethodStat struct {
	Method     Method `json:"method"`
	Status     string `json:"status"`
	Candidates int    `json:"candidates"`
}

// DetectionResult is the envelope returned by every detection run
type DetectionResult struct {
	Success            bool             `json:"success"`
	RunID              string           `json:"run_id"`
	Anomalies          []AnomalyRecord  `json:"anomalies"`
	DetectionMethod    Method           `json:"detection_method"`
	MethodsUsed        []Method         `json:"methods_used"`
	Threshold          float64          `json:"threshold"`
	DataPoints         int              `json:"data_points"`
	AnomalyCount       int              `json:"anomaly_count"`
	DetectionTimestamp time.Time        `json:"detection_timestamp"`
	Note               string           `json:"note,omitempty"`
	Error              string           `json:"error,omitempty"`
	Fallbacks          []MethodFallback `json:"fallbacks,omitempty"`
	MethodStats        []MethodStat     `json:"method_stats,omitempty"`
}

// Anomaly types
const (
	TypeCostSpike = "cost_spike"
	TypeCostDrop  = "cost_drop"
)

// Severity levels
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Status
const (
	StatusDetected     = "detected"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusIgnored      = "ignored"
)

// IsValidStatus reports whether status is a known workflow status
func IsValidStatus(status string) bool {
	switch status {
	case StatusDetected, StatusAcknowledged, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Anomaly is a persisted anomaly record, unique per (user, provider, service, date)
type Anomaly struct {
	ID                 string          `json:"id"`
	UserID             int64           `json:"user_id"`
	Provider           string          `json:"provider"`
	Service            string          `json:"service"`
	ResourceID         string          `json:"resource_id,omitempty"`
	CostDate           time.Time       `json:"cost_date"`
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
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at,omitempty"`
}

// FromRecord converts a detection record into a persistable anomaly
func FromRecord(userID int64, rec AnomalyRecord, detectedAt time.Time) (*Anomaly, error) {
	a := &Anomaly{
		UserID:             userID,
		Provider:           rec.Provider,
		Service:            rec.Service,
		ResourceID:         rec.ResourceID,
		CostDate:           rec.Date,
		Cost:               rec.Cost,
		BaselineCost:       rec.BaselineCost,
		CostDifference:     rec.CostDifference,
		PercentageIncrease: rec.PercentageIncrease,
		DetectionMethod:    rec.DetectionMethod,
		MethodsAgreement:   rec.MethodsAgreement,
		MethodsTotal:       rec.MethodsTotal,
		Confidence:         rec.Confidence,
		AnomalyType:        rec.AnomalyType,
		Severity:           rec.Severity,
		RootCause:          rec.RootCause,
		Status:             StatusDetected,
		DetectedAt:         detectedAt,
	}
	if rec.CloudContext != nil {
		raw, err := json.Marshal(rec.CloudContext)
		if err != nil {
			return nil, err
		}
		a.CloudContext = raw
	}
	return a, nil
}

// Filter contains anomaly filtering options
type Filter struct {
	Provider  string
	Service   string
	Severity  string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
}

// Summary aggregates stored anomalies
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByStatus   map[string]int `json:"by_status"`
}
