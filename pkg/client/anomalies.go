package client

import (
	"context"
	"net/url"
	"strconv"
)

// AnomalyService handles anomaly detection API calls
type AnomalyService struct {
	client *Client
}

// AnomalyListOptions contains options for listing anomalies
type AnomalyListOptions struct {
	ListOptions
	Provider  string
	Service   string
	Severity  string // critical, high, medium, low
	Status    string // detected, acknowledged, resolved, ignored
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
}

// DetectOptions configures a detection run
type DetectOptions struct {
	Days      int
	Threshold float64
	Method    string // zscore, isolation, density, decomposition, ensemble
	Provider  string
	Service   string
	// SkipRootCause disables cloud context analysis
	SkipRootCause bool

	Utilization  []UtilizationSample
	CustomEvents []CustomEvent
}

// UtilizationSample is a resource utilization reading sent with a detection run
type UtilizationSample struct {
	Date       string  `json:"date"`
	Provider   string  `json:"provider,omitempty"`
	Service    string  `json:"service,omitempty"`
	ResourceID string  `json:"resource_id,omitempty"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
}

// CustomEvent is a deployment, launch or other event that may explain an anomaly
type CustomEvent struct {
	Date        string   `json:"date"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Services    []string `json:"services,omitempty"`
}

type detectBody struct {
	Utilization  []UtilizationSample `json:"utilization,omitempty"`
	CustomEvents []CustomEvent       `json:"custom_events,omitempty"`
}

// Detect runs detection over the caller's stored costs
func (s *AnomalyService) Detect(ctx context.Context, opts *DetectOptions) (*DetectionResult, error) {
	query := url.Values{}
	var body interface{}
	if opts != nil {
		if opts.Days > 0 {
			query.Set("days", strconv.Itoa(opts.Days))
		}
		if opts.Threshold > 0 {
			query.Set("threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
		}
		setIf(query, "method", opts.Method)
		setIf(query, "provider", opts.Provider)
		setIf(query, "service", opts.Service)
		if opts.SkipRootCause {
			query.Set("analyze_root_cause", "false")
		}
		if len(opts.Utilization) > 0 || len(opts.CustomEvents) > 0 {
			body = detectBody{Utilization: opts.Utilization, CustomEvents: opts.CustomEvents}
		}
	}

	var result DetectionResult
	if err := s.client.doRequest(ctx, "POST", withQuery("/api/v1/anomalies/detect", query), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List retrieves one page of stored anomalies
func (s *AnomalyService) List(ctx context.Context, opts *AnomalyListOptions) (*Page[Anomaly], error) {
	query := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		setIf(query, "provider", opts.Provider)
		setIf(query, "service", opts.Service)
		setIf(query, "severity", opts.Severity)
		setIf(query, "status", opts.Status)
		setIf(query, "start_date", opts.StartDate)
		setIf(query, "end_date", opts.EndDate)
	}

	var page Page[Anomaly]
	if err := s.client.doRequest(ctx, "GET", withQuery("/api/v1/anomalies", query), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Summary counts stored anomalies by severity and status
func (s *AnomalyService) Summary(ctx context.Context) (*AnomalySummary, error) {
	var summary AnomalySummary
	if err := s.client.doRequest(ctx, "GET", "/api/v1/anomalies/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Get retrieves a single anomaly by ID
func (s *AnomalyService) Get(ctx context.Context, id string) (*Anomaly, error) {
	var anomaly Anomaly
	if err := s.client.doRequest(ctx, "GET", "/api/v1/anomalies/"+url.PathEscape(id), nil, &anomaly); err != nil {
		return nil, err
	}
	return &anomaly, nil
}

// UpdateStatus moves an anomaly through its workflow
func (s *AnomalyService) UpdateStatus(ctx context.Context, id, status string) error {
	return s.client.doRequest(ctx, "PATCH", "/api/v1/anomalies/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, nil)
}

// Resolve marks an anomaly as resolved
func (s *AnomalyService) Resolve(ctx context.Context, id string) error {
	return s.UpdateStatus(ctx, id, "resolved")
}

// Acknowledge marks an anomaly as acknowledged
func (s *AnomalyService) Acknowledge(ctx context.Context, id string) error {
	return s.UpdateStatus(ctx, id, "acknowledged")
}

// Delete deletes an anomaly
func (s *AnomalyService) Delete(ctx context.Context, id string) error {
	return s.client.doRequest(ctx, "DELETE", "/api/v1/anomalies/"+url.PathEscape(id), nil, nil)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
