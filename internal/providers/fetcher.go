package providers

import (
	"context"
	"sort"
	"time"

	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
)

// CostFetcher pulls daily billing rows from one cloud provider
type CostFetcher interface {
	Provider() string
	FetchCosts(ctx context.Context, start, end time.Time) ([]cost.Cost, error)
}

// NewCostFetchers builds a fetcher for every provider that has credentials configured
func NewCostFetchers(cfg config.ProvidersConfig) map[string]CostFetcher {
	fetchers := make(map[string]CostFetcher)

	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		fetchers[cost.ProviderAWS] = NewAWSCostFetcher(AWSCredentials{
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Region:          cfg.AWS.Region,
		})
	}
	if cfg.GCP.ProjectID != "" && cfg.GCP.BillingTable != "" {
		fetchers[cost.ProviderGCP] = NewGCPCostFetcher(GCPBillingCredentials{
			ProjectID:          cfg.GCP.ProjectID,
			ServiceAccountJSON: cfg.GCP.CredentialsJSON,
			BillingDataset:     cfg.GCP.BillingDataset,
			BillingTable:       cfg.GCP.BillingTable,
		})
	}
	if cfg.Azure.TenantID != "" && cfg.Azure.SubscriptionID != "" {
		fetchers[cost.ProviderAzure] = NewAzureCostFetcher(AzureCredentials{
			TenantID:       cfg.Azure.TenantID,
			ClientID:       cfg.Azure.ClientID,
			ClientSecret:   cfg.Azure.ClientSecret,
			SubscriptionID: cfg.Azure.SubscriptionID,
		})
	}

	return fetchers
}

// Names returns the providers in fetchers, sorted
func Names(fetchers map[string]CostFetcher) []string {
	names := make([]string, 0, len(fetchers))
	for name := range fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const dateLayout = "2006-01-02"
