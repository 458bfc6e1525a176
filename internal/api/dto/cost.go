package dto

import (
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
)

// CostRowDTO is one daily cost row in an ingest request
type CostRowDTO struct {
	Provider     string          `json:"provider" validate:"required,oneof=aws gcp azure"`
	ServiceName  string          `json:"service_name" validate:"required,max=255"`
	Region       string          `json:"region,omitempty" validate:"max=100"`
	ResourceID   string          `json:"resource_id,omitempty" validate:"max=512"`
	ResourceType string          `json:"resource_type,omitempty"`
	CostDate     string          `json:"cost_date" validate:"required,datetime=2006-01-02"`
	DailyCost    *float64        `json:"daily_cost"`
	Currency     string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	CostDetails  json.RawMessage `json:"cost_details,omitempty"`
}

// IngestCostsRequest represents a batch of cost rows
type IngestCostsRequest struct {
	Costs []CostRowDTO `json:"costs" validate:"required,min=1,max=10000,dive"`
}

// ToDomain converts the batch into cost rows. Dates are assumed validated.
func (r IngestCostsRequest) ToDomain() []*cost.Cost {
	rows := make([]*cost.Cost, 0, len(r.Costs))
	for _, c := range r.Costs {
		d, _ := time.Parse(DateLayout, c.CostDate)
		currency := c.Currency
		if currency == "" {
			currency = "USD"
		}
		row := &cost.Cost{
			Provider:     c.Provider,
			ServiceName:  c.ServiceName,
			Region:       c.Region,
			ResourceType: c.ResourceType,
			CostDate:     d,
			DailyCost:    c.DailyCost,
			Currency:     currency,
			CostDetails:  c.CostDetails,
		}
		if c.ResourceID != "" {
			id := c.ResourceID
			row.ResourceID = &id
		}
		rows = append(rows, row)
	}
	return rows
}

// IngestCostsResponse reports how many rows were stored
type IngestCostsResponse struct {
	Stored int `json:"stored"`
}

// SyncResultDTO reports a provider sync
type SyncResultDTO struct {
	Provider string `json:"provider"`
	Fetched  int    `json:"fetched"`
	Stored   int    `json:"stored"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// FromSyncResult maps a sync result into its response shape
func FromSyncResult(r *cost.SyncResult) SyncResultDTO {
	return SyncResultDTO{
		Provider: r.Provider,
		Fetched:  r.Fetched,
		Stored:   r.Stored,
		From:     r.From.Format(DateLayout),
		To:       r.To.Format(DateLayout),
	}
}

// CostDTO is a stored cost row in API responses
type CostDTO struct {
	Provider    string   `json:"provider"`
	ServiceName string   `json:"service_name"`
	Region      string   `json:"region,omitempty"`
	ResourceID  string   `json:"resource_id,omitempty"`
	CostDate    string   `json:"cost_date"`
	DailyCost   *float64 `json:"daily_cost"`
	Currency    string   `json:"currency"`
}

// FromCost maps a stored row into its response shape
func FromCost(c *cost.Cost) CostDTO {
	out := CostDTO{
		Provider:    c.Provider,
		ServiceName: c.ServiceName,
		Region:      c.Region,
		CostDate:    c.CostDate.UTC().Format(DateLayout),
		DailyCost:   c.DailyCost,
		Currency:    c.Currency,
	}
	if c.ResourceID != nil {
		out.ResourceID = *c.ResourceID
	}
	return out
}

// CostSummaryResponse represents aggregated costs in API responses
type CostSummaryResponse struct {
	TotalCost  float64            `json:"total_cost"`
	Currency   string             `json:"currency"`
	StartDate  string             `json:"start_date"`
	EndDate    string             `json:"end_date"`
	ByService  map[string]float64 `json:"by_service"`
	ByProvider map[string]float64 `json:"by_provider"`
}
