package client

import (
	"context"
	"net/url"
	"strconv"
)

// CostService handles cost ingestion API calls
type CostService struct {
	client *Client
}

// CostQueryOptions filters cost listings and summaries
type CostQueryOptions struct {
	Provider  string
	Service   string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
}

func (o *CostQueryOptions) values() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	setIf(q, "provider", o.Provider)
	setIf(q, "service", o.Service)
	setIf(q, "start_date", o.StartDate)
	setIf(q, "end_date", o.EndDate)
	return q
}

// Ingest uploads a batch of daily cost rows and returns how many were stored
func (s *CostService) Ingest(ctx context.Context, rows []CostRow) (int, error) {
	var resp struct {
		Stored int `json:"stored"`
	}
	if err := s.client.doRequest(ctx, "POST", "/api/v1/costs", map[string]interface{}{"costs": rows}, &resp); err != nil {
		return 0, err
	}
	return resp.Stored, nil
}

// List returns stored cost rows
func (s *CostService) List(ctx context.Context, opts *CostQueryOptions) ([]CostRow, error) {
	var rows []CostRow
	if err := s.client.doRequest(ctx, "GET", withQuery("/api/v1/costs", opts.values()), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Summary aggregates stored costs
func (s *CostService) Summary(ctx context.Context, opts *CostQueryOptions) (*CostSummary, error) {
	var summary CostSummary
	if err := s.client.doRequest(ctx, "GET", withQuery("/api/v1/costs/summary", opts.values()), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Sync pulls the last days of billing data from one provider
func (s *CostService) Sync(ctx context.Context, provider string, days int) (*SyncResult, error) {
	var res SyncResult
	if err := s.client.doRequest(ctx, "POST", withQuery("/api/v1/costs/sync/"+url.PathEscape(provider), daysQuery(days)), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SyncAll syncs every provider configured on the server
func (s *CostService) SyncAll(ctx context.Context, days int) ([]SyncResult, error) {
	var res []SyncResult
	if err := s.client.doRequest(ctx, "POST", withQuery("/api/v1/costs/sync", daysQuery(days)), nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func daysQuery(days int) url.Values {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	return q
}
