package client

import (
	"encoding/json"
	"time"
)

// ListOptions contains common pagination options
type ListOptions struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Page is one page of a paginated listing
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// HealthResponse represents a health or readiness check
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Anomaly is a stored cost anomaly
type Anomaly struct {
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

// AnomalySummary counts stored anomalies
type AnomalySummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByStatus   map[string]int `json:"by_status"`
}

// ProbableCause is one ranked root cause hypothesis
type ProbableCause struct {
	Cause       string   `json:"cause"`
	Description string   `json:"description,omitempty"`
	Confidence  string   `json:"confidence"`
	Source      string   `json:"source"`
	Timeline    string   `json:"timeline,omitempty"`
	Metrics     []string `json:"metrics,omitempty"`
}

// RelatedService is another service whose cost moved on the same date
type RelatedService struct {
	Service       string  `json:"service"`
	Provider      string  `json:"provider"`
	Cost          float64 `json:"cost"`
	PriorAverage  float64 `json:"prior_average"`
	ChangePercent float64 `json:"change_percent"`
	Correlation   string  `json:"correlation"`
}

// CloudContext explains a detected anomaly
type CloudContext struct {
	ProbableCauses        []ProbableCause  `json:"probable_causes"`
	PatternType           string           `json:"pattern_type,omitempty"`
	AffectedResources     []string         `json:"affected_resources"`
	RelatedServices       []RelatedService `json:"related_services"`
	MitigationSuggestions []string         `json:"mitigation_suggestions"`
}

// AnomalyRecord is one anomaly produced by a detection run
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
	Method   string `json:"method"`
	Fallback string `json:"fallback,omitempty"`
	Reason   string `json:"reason"`
}

// MethodStat summarizes one method slot of a run
type MethodStat struct {
	Method     string `json:"method"`
	Status     string `json:"status"`
	Candidates int    `json:"candidates"`
}

// DetectionResult is the envelope of a detection run
type DetectionResult struct {
	Success            bool             `json:"success"`
	RunID              string           `json:"run_id"`
	Anomalies          []AnomalyRecord  `json:"anomalies"`
	DetectionMethod    string           `json:"detection_method"`
	MethodsUsed        []string         `json:"methods_used"`
	Threshold          float64          `json:"threshold"`
	DataPoints         int              `json:"data_points"`
	AnomalyCount       int              `json:"anomaly_count"`
	DetectionTimestamp time.Time        `json:"detection_timestamp"`
	Note               string           `json:"note,omitempty"`
	Error              string           `json:"error,omitempty"`
	Fallbacks          []MethodFallback `json:"fallbacks,omitempty"`
	MethodStats        []MethodStat     `json:"method_stats,omitempty"`
}

// CostRow is one daily cost row
type CostRow struct {
	Provider     string          `json:"provider"`
	ServiceName  string          `json:"service_name"`
	Region       string          `json:"region,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	CostDate     string          `json:"cost_date"`
	DailyCost    *float64        `json:"daily_cost"`
	Currency     string          `json:"currency,omitempty"`
	CostDetails  json.RawMessage `json:"cost_details,omitempty"`
}

// SyncResult reports a provider sync
type SyncResult struct {
	Provider string `json:"provider"`
	Fetched  int    `json:"fetched"`
	Stored   int    `json:"stored"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// CostSummary aggregates stored costs
type CostSummary struct {
	TotalCost  float64            `json:"total_cost"`
	Currency   string             `json:"currency"`
	StartDate  string             `json:"start_date"`
	EndDate    string             `json:"end_date"`
	ByService  map[string]float64 `json:"by_service"`
	ByProvider map[string]float64 `json:"by_provider"`
}
