package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
)

// AzureCredentials holds a service principal for Cost Management
type AzureCredentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// AzureCostFetcher reads daily pre-tax cost per service and location from Cost Management
type AzureCostFetcher struct {
	creds AzureCredentials
}

// NewAzureCostFetcher creates a Cost Management fetcher
func NewAzureCostFetcher(creds AzureCredentials) *AzureCostFetcher {
	return &AzureCostFetcher{creds: creds}
}

func (f *AzureCostFetcher) Provider() string { return cost.ProviderAzure }

// FetchCosts retrieves cost data for [start, end)
func (f *AzureCostFetcher) FetchCosts(ctx context.Context, start, end time.Time) ([]cost.Cost, error) {
	credential, err := azidentity.NewClientSecretCredential(f.creds.TenantID, f.creds.ClientID, f.creds.ClientSecret, nil)
	if err != nil {
		return nil, errors.ProviderAuthError("Azure", err)
	}

	client, err := armcostmanagement.NewQueryClient(credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}

	from, to := start.UTC(), end.UTC().Add(-time.Second)
	scope := fmt.Sprintf("subscriptions/%s", f.creds.SubscriptionID)

	sumFunc := armcostmanagement.FunctionTypeSum
	dimGrouping := armcostmanagement.QueryColumnTypeDimension
	granularity := armcostmanagement.GranularityTypeDaily
	timeframeCustom := armcostmanagement.TimeframeTypeCustom
	exportTypeActual := armcostmanagement.ExportTypeActualCost

	queryDef := armcostmanagement.QueryDefinition{
		Type:       &exportTypeActual,
		Timeframe:  &timeframeCustom,
		TimePeriod: &armcostmanagement.QueryTimePeriod{From: &from, To: &to},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"PreTaxCost": {Name: ptrStr("PreTaxCost"), Function: &sumFunc},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{Type: &dimGrouping, Name: ptrStr("ServiceName")},
				{Type: &dimGrouping, Name: ptrStr("ResourceLocation")},
			},
		},
	}

	result, err := client.Usage(ctx, scope, queryDef, nil)
	if err != nil {
		return nil, fmt.Errorf("Azure Cost Management API error: %w", err)
	}
	if result.Properties == nil {
		return nil, nil
	}

	var names []string
	for _, col := range result.Properties.Columns {
		if col != nil && col.Name != nil {
			names = append(names, *col.Name)
		} else {
			names = append(names, "")
		}
	}

	return azureRowsToCosts(names, result.Properties.Rows), nil
}

func azureRowsToCosts(columns []string, rows [][]interface{}) []cost.Cost {
	colIndex := make(map[string]int, len(columns))
	for i, name := range columns {
		colIndex[name] = i
	}

	costIdx, hasCost := colIndex["PreTaxCost"]
	serviceIdx, hasService := colIndex["ServiceName"]
	locationIdx, hasLocation := colIndex["ResourceLocation"]
	currencyIdx, hasCurrency := colIndex["Currency"]
	dateIdx, hasDate := colIndex["UsageDate"]
	if !hasDate {
		dateIdx, hasDate = colIndex["UsageDateKey"]
	}
	if !hasCost || !hasDate {
		return nil
	}

	var costs []cost.Cost
	for _, row := range rows {
		if costIdx >= len(row) || dateIdx >= len(row) {
			continue
		}

		dailyCost, ok := row[costIdx].(float64)
		if !ok || dailyCost == 0 {
			continue
		}

		costDate := parseAzureDate(row[dateIdx])
		if costDate.IsZero() {
			continue
		}

		serviceName := stringAt(row, serviceIdx, hasService)
		location := stringAt(row, locationIdx, hasLocation)
		currency := stringAt(row, currencyIdx, hasCurrency)
		if currency == "" {
			currency = "USD"
		}

		details, _ := json.Marshal(map[string]interface{}{
			"service":  serviceName,
			"location": location,
		})

		costs = append(costs, cost.Cost{
			Provider:    cost.ProviderAzure,
			ServiceName: serviceName,
			Region:      location,
			CostDate:    costDate,
			DailyCost:   cost.Amount(dailyCost),
			Currency:    currency,
			CostDetails: json.RawMessage(details),
		})
	}
	return costs
}

// parseAzureDate accepts the YYYYMMDD number Cost Management returns, or an ISO date string
func parseAzureDate(v interface{}) time.Time {
	switch d := v.(type) {
	case float64:
		n := int(d)
		year, month, day := n/10000, (n%10000)/100, n%100
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	case string:
		if t, err := time.Parse(dateLayout, d); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			y, m, day := t.UTC().Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

func stringAt(row []interface{}, idx int, ok bool) string {
	if !ok || idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return s
}

func ptrStr(s string) *string {
	return &s
}
