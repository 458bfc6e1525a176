package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
)

// GCPBillingCredentials holds credentials for GCP billing data access via BigQuery.
type GCPBillingCredentials struct {
	ProjectID          string
	ServiceAccountJSON string
	BillingDataset     string
	BillingTable       string
}

// Table returns the fully qualified billing export table
func (c GCPBillingCredentials) Table() string {
	if strings.Count(c.BillingTable, ".") >= 2 {
		return c.BillingTable
	}
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.BillingDataset, c.BillingTable)
}

// GCPCostFetcher reads daily cost per service and region from a BigQuery billing export
type GCPCostFetcher struct {
	creds GCPBillingCredentials
}

// NewGCPCostFetcher creates a BigQuery billing export fetcher
func NewGCPCostFetcher(creds GCPBillingCredentials) *GCPCostFetcher {
	return &GCPCostFetcher{creds: creds}
}

func (f *GCPCostFetcher) Provider() string { return cost.ProviderGCP }

type gcpBillingRow struct {
	ServiceName string               `bigquery:"service_name"`
	Region      string               `bigquery:"region"`
	CostDate    bigquery.NullDate    `bigquery:"cost_date"`
	DailyCost   bigquery.NullFloat64 `bigquery:"daily_cost"`
	Currency    string               `bigquery:"currency"`
}

// FetchCosts retrieves cost data for [start, end)
func (f *GCPCostFetcher) FetchCosts(ctx context.Context, start, end time.Time) ([]cost.Cost, error) {
	if f.creds.BillingTable == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	if f.creds.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(f.creds.ServiceAccountJSON)))
	}

	client, err := bigquery.NewClient(ctx, f.creds.ProjectID, opts...)
	if err != nil {
		return nil, errors.ProviderAuthError("GCP", err)
	}
	defer client.Close()

	query := client.Query(fmt.Sprintf(`
		SELECT
			service.description AS service_name,
			IFNULL(location.region, 'global') AS region,
			DATE(usage_start_time) AS cost_date,
			SUM(cost) AS daily_cost,
			currency
		FROM %s
		WHERE DATE(usage_start_time) >= @start_date AND DATE(usage_start_time) < @end_date
		GROUP BY service_name, region, cost_date, currency
		ORDER BY cost_date ASC, daily_cost DESC
	`, fmt.Sprintf("`%s`", f.creds.Table())))

	query.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: civil.DateOf(start.UTC())},
		{Name: "end_date", Value: civil.DateOf(end.UTC())},
	}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuery query error: %w", err)
	}

	var costs []cost.Cost
	for {
		var row gcpBillingRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQuery row read error: %w", err)
		}
		if c, ok := gcpRowToCost(row); ok {
			costs = append(costs, c)
		}
	}

	return costs, nil
}

// gcpRowToCost keeps rows with a null amount so the detector can impute them
func gcpRowToCost(row gcpBillingRow) (cost.Cost, bool) {
	if !row.CostDate.Valid {
		return cost.Cost{}, false
	}
	if row.DailyCost.Valid && row.DailyCost.Float64 == 0 {
		return cost.Cost{}, false
	}

	currency := row.Currency
	if currency == "" {
		currency = "USD"
	}

	details, _ := json.Marshal(map[string]interface{}{
		"service": row.ServiceName,
		"region":  row.Region,
	})

	c := cost.Cost{
		Provider:    cost.ProviderGCP,
		ServiceName: row.ServiceName,
		Region:      row.Region,
		CostDate:    row.CostDate.Date.In(time.UTC),
		Currency:    currency,
		CostDetails: json.RawMessage(details),
	}
	if row.DailyCost.Valid {
		c.DailyCost = cost.Amount(row.DailyCost.Float64)
	}
	return c, true
}
