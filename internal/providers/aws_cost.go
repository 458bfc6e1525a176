package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
)

// AWSCredentials holds static credentials for Cost Explorer
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// AWSCostFetcher reads daily unblended cost per service and region from Cost Explorer
type AWSCostFetcher struct {
	creds AWSCredentials
}

// NewAWSCostFetcher creates a Cost Explorer fetcher
func NewAWSCostFetcher(creds AWSCredentials) *AWSCostFetcher {
	return &AWSCostFetcher{creds: creds}
}

func (f *AWSCostFetcher) Provider() string { return cost.ProviderAWS }

// FetchCosts retrieves cost data for [start, end). Cost Explorer is only served from us-east-1.
func (f *AWSCostFetcher) FetchCosts(ctx context.Context, start, end time.Time) ([]cost.Cost, error) {
	region := "us-east-1"

	var cfg aws.Config
	var err error
	if f.creds.AccessKeyID != "" && f.creds.SecretAccessKey != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(f.creds.AccessKeyID, f.creds.SecretAccessKey, "")),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, errors.ProviderAuthError("AWS", err)
	}

	client := costexplorer.NewFromConfig(cfg)

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.UTC().Format(dateLayout)),
			End:   aws.String(end.UTC().Format(dateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("REGION")},
		},
	}

	var costs []cost.Cost
	for {
		result, err := client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("AWS Cost Explorer API error: %w", err)
		}
		costs = append(costs, awsResultsToCosts(result.ResultsByTime)...)

		if result.NextPageToken == nil || *result.NextPageToken == "" {
			break
		}
		input.NextPageToken = result.NextPageToken
	}

	return costs, nil
}

func awsResultsToCosts(results []cetypes.ResultByTime) []cost.Cost {
	var costs []cost.Cost
	for _, byTime := range results {
		if byTime.TimePeriod == nil || byTime.TimePeriod.Start == nil {
			continue
		}
		costDate, err := time.Parse(dateLayout, *byTime.TimePeriod.Start)
		if err != nil {
			continue
		}

		for _, group := range byTime.Groups {
			var serviceName, regionName string
			if len(group.Keys) > 0 {
				serviceName = group.Keys[0]
			}
			if len(group.Keys) > 1 {
				regionName = group.Keys[1]
			}

			metric, ok := group.Metrics["UnblendedCost"]
			if !ok || metric.Amount == nil {
				continue
			}
			amount, err := decimal.NewFromString(*metric.Amount)
			if err != nil || amount.IsZero() {
				continue
			}

			currency := "USD"
			if metric.Unit != nil && *metric.Unit != "" {
				currency = *metric.Unit
			}

			details, _ := json.Marshal(map[string]interface{}{
				"service": serviceName,
				"region":  regionName,
				"metric":  "UnblendedCost",
			})

			costs = append(costs, cost.Cost{
				Provider:    cost.ProviderAWS,
				ServiceName: serviceName,
				Region:      regionName,
				CostDate:    costDate,
				DailyCost:   cost.Amount(amount.InexactFloat64()),
				Currency:    currency,
				CostDetails: json.RawMessage(details),
			})
		}
	}
	return costs
}
