package cost

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/shopspring/decimal"
)

// Cost represents a daily cost record for a provider service
type Cost struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"user_id"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Provider     string          `json:"provider"`
	Region       string          `json:"region,omitempty"`
	ServiceName  string          `json:"service_name"`
	ResourceType string          `json:"resource_type,omitempty"`
	CostDate     time.Time       `json:"cost_date"`
	DailyCost    *float64        `json:"daily_cost"`
	Currency     string          `json:"currency"`
	CostDetails  json.RawMessage `json:"cost_details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Observation converts the row into a detector input. A missing or non-finite daily cost stays null.
func (c *Cost) Observation() anomaly.CostObservation {
	obs := anomaly.CostObservation{
		Date:     c.CostDate,
		Service:  c.ServiceName,
		Provider: c.Provider,
	}
	if c.DailyCost != nil && !math.IsNaN(*c.DailyCost) && !math.IsInf(*c.DailyCost, 0) {
		obs.Cost = decimal.NewNullDecimal(decimal.NewFromFloat(*c.DailyCost))
	}
	if c.ResourceID != nil {
		obs.ResourceID = *c.ResourceID
	}
	return obs
}

// Observations converts a batch of rows into detector inputs
func Observations(costs []*Cost) []anomaly.CostObservation {
	out := make([]anomaly.CostObservation, 0, len(costs))
	for _, c := range costs {
		out = append(out, c.Observation())
	}
	return out
}

// Amount returns a pointer to v, for building rows with a known cost
func Amount(v float64) *float64 {
	return &v
}

// CostSummary represents aggregated cost data
type CostSummary struct {
	Provider   string             `json:"provider,omitempty"`
	TotalCost  float64            `json:"total_cost"`
	Currency   string             `json:"currency"`
	StartDate  time.Time          `json:"start_date"`
	EndDate    time.Time          `json:"end_date"`
	ByService  map[string]float64 `json:"by_service"`
	ByProvider map[string]float64 `json:"by_provider"`
}

// SyncResult reports one provider sync
type SyncResult struct {
	Provider string    `json:"provider"`
	Fetched  int       `json:"fetched"`
	Stored   int       `json:"stored"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

// Filter contains cost query filters
type Filter struct {
	Provider    string
	ServiceName string
	ResourceID  string
	Region      string
}

// Provider constants
const (
	ProviderAWS   = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"
)

// IsValidProvider reports whether p names a supported cloud provider
func IsValidProvider(p string) bool {
	switch p {
	case ProviderAWS, ProviderGCP, ProviderAzure:
		return true
	}
	return false
}
