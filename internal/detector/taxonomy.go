package detector

import (
	"strings"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// allServices marks an event that applies to every service of a provider
const allServices = "All"

// cloudEvents is the static provider billing event taxonomy, keyed by normalized provider
var cloudEvents = map[string][]anomaly.EventPattern{
	"aws": {
		{
			EventName:          "Auto Scaling provisioning surge",
			PatternType:        anomaly.PatternSuddenIncrease,
			ApplicableServices: []string{"EC2", "Amazon Elastic Compute Cloud - Compute", "ECS", "EKS", "Amazon Elastic Container Service", "Amazon Elastic Kubernetes Service"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "A scaling policy or manual action launched a large batch of instances",
		},
		{
			EventName:          "Reserved Instance expiration",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"EC2", "Amazon Elastic Compute Cloud - Compute", "RDS", "Amazon Relational Database Service", "ElastiCache", "Amazon ElastiCache", "Redshift", "Amazon Redshift"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "Usage previously covered by a reservation is now billed at on-demand rates",
		},
		{
			EventName:          "Savings Plan commitment lapse",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"EC2", "Amazon Elastic Compute Cloud - Compute", "Lambda", "AWS Lambda", "Fargate", "AWS Fargate"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "A Savings Plan ended and covered usage reverted to on-demand pricing",
		},
		{
			EventName:          "Data transfer spike",
			PatternType:        anomaly.PatternTemporarySpike,
			ApplicableServices: []string{"EC2", "Amazon Elastic Compute Cloud - Compute", "S3", "Amazon Simple Storage Service", "CloudFront", "Amazon CloudFront", "AWS Data Transfer"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Unusual egress or cross-region traffic was billed",
		},
		{
			EventName:          "S3 storage growth",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"S3", "Amazon Simple Storage Service", "EBS", "Amazon Elastic Block Store", "EFS", "Amazon Elastic File System"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "Stored volume grew sharply through backups, logs or snapshots",
		},
		{
			EventName:          "Monthly support and subscription charges",
			PatternType:        anomaly.PatternCyclicalSpike,
			ApplicableServices: []string{allServices},
			Timeline:           anomaly.TimelineRecurring,
			Description:        "Support plans, Marketplace subscriptions and upfront fees post on a fixed day each month",
		},
		{
			EventName:          "Lambda invocation burst",
			PatternType:        anomaly.PatternTemporarySpike,
			ApplicableServices: []string{"Lambda", "AWS Lambda"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "A retry storm or traffic burst multiplied function invocations",
		},
	},
	"gcp": {
		{
			EventName:          "Managed instance group scale-out",
			PatternType:        anomaly.PatternSuddenIncrease,
			ApplicableServices: []string{"Compute Engine", "Kubernetes Engine", "GKE"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Autoscaler added VMs or nodes in response to load",
		},
		{
			EventName:          "Committed use discount expiration",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"Compute Engine", "Cloud SQL", "Kubernetes Engine"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "A committed use contract ended and usage is billed at list price",
		},
		{
			EventName:          "BigQuery on-demand query burst",
			PatternType:        anomaly.PatternTemporarySpike,
			ApplicableServices: []string{"BigQuery"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Large ad hoc or scheduled queries scanned far more data than usual",
		},
		{
			EventName:          "Network egress spike",
			PatternType:        anomaly.PatternTemporarySpike,
			ApplicableServices: []string{"Compute Engine", "Cloud Storage", "Networking", "Cloud CDN"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Internet or inter-region egress rose sharply",
		},
		{
			EventName:          "Cloud Storage growth",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"Cloud Storage"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "Bucket contents grew or moved to a more expensive storage class",
		},
		{
			EventName:          "Monthly billing cycle charges",
			PatternType:        anomaly.PatternCyclicalSpike,
			ApplicableServices: []string{allServices},
			Timeline:           anomaly.TimelineRecurring,
			Description:        "Support and subscription fees are invoiced at the start of the billing cycle",
		},
	},
	"azure": {
		{
			EventName:          "Virtual Machine Scale Set expansion",
			PatternType:        anomaly.PatternSuddenIncrease,
			ApplicableServices: []string{"Virtual Machines", "Virtual Machine Scale Sets", "Azure Kubernetes Service"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Scale set autoscale rules added instances",
		},
		{
			EventName:          "Azure Reservation expiration",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"Virtual Machines", "SQL Database", "Azure Cosmos DB", "App Service"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "A reserved capacity term ended and usage reverted to pay-as-you-go",
		},
		{
			EventName:          "Bandwidth spike",
			PatternType:        anomaly.PatternTemporarySpike,
			ApplicableServices: []string{"Bandwidth", "Virtual Network", "Content Delivery Network"},
			Timeline:           anomaly.TimelineTemporary,
			Description:        "Outbound data transfer rose sharply",
		},
		{
			EventName:          "Storage account growth",
			PatternType:        anomaly.PatternStepIncrease,
			ApplicableServices: []string{"Storage", "Azure Blob Storage", "Managed Disks"},
			Timeline:           anomaly.TimelinePersistent,
			Description:        "Blob, disk or snapshot capacity grew",
		},
		{
			EventName:          "Monthly Marketplace and support charges",
			PatternType:        anomaly.PatternCyclicalSpike,
			ApplicableServices: []string{allServices},
			Timeline:           anomaly.TimelineRecurring,
			Description:        "Marketplace and support fees post on the billing anniversary",
		},
	},
}

// providerAliases maps provider labels seen in billing exports onto taxonomy keys
var providerAliases = map[string]string{
	"aws":                   "aws",
	"amazon":                "aws",
	"amazon web services":   "aws",
	"gcp":                   "gcp",
	"google":                "gcp",
	"google cloud":          "gcp",
	"google cloud platform": "gcp",
	"azure":                 "azure",
	"microsoft azure":       "azure",
}

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if alias, ok := providerAliases[p]; ok {
		return alias
	}
	return p
}

// utilizationPattern is a utilization metric whose surge explains a cost anomaly
type utilizationPattern struct {
	metric      string
	aliases     []string
	multiplier  float64
	cause       string
	description string
}

var utilizationPatterns = []utilizationPattern{
	{
		metric:      "instance_count",
		aliases:     []string{"instances", "node_count", "vm_count"},
		multiplier:  1.5,
		cause:       "Instance count surge",
		description: "Running instance count rose well above its usual level",
	},
	{
		metric:      "idle_ratio",
		aliases:     []string{"idle", "idle_percentage", "cpu_idle"},
		multiplier:  1.5,
		cause:       "Idle instance accumulation",
		description: "Provisioned instances sat idle while still being billed",
	},
	{
		metric:      "storage_gb",
		aliases:     []string{"storage", "storage_used_gb", "disk_gb"},
		multiplier:  2.0,
		cause:       "Storage volume growth",
		description: "Stored data grew far beyond its usual size",
	},
	{
		metric:      "network_gb",
		aliases:     []string{"network", "network_egress_gb", "data_transfer_gb", "egress_gb"},
		multiplier:  3.0,
		cause:       "Network data transfer surge",
		description: "Data transfer volume was several times its usual level",
	},
}

func lookupUtilizationPattern(metric string) (utilizationPattern, bool) {
	m := strings.ToLower(strings.TrimSpace(metric))
	for _, p := range utilizationPatterns {
		if p.metric == m {
			return p, true
		}
		for _, a := range p.aliases {
			if a == m {
				return p, true
			}
		}
	}
	return utilizationPattern{}, false
}

// Service categories for mitigation lookup
const (
	categoryCompute  = "compute"
	categoryStorage  = "storage"
	categoryDatabase = "database"
)

// serviceCategories is checked in order; the first category with a matching keyword wins
var serviceCategories = []struct {
	category string
	keywords []string
}{
	{categoryDatabase, []string{"rds", "database", "dynamodb", "aurora", "sql", "cosmos", "bigquery", "redshift", "elasticache", "spanner", "firestore"}},
	{categoryCompute, []string{"ec2", "compute", "virtual machine", "lambda", "functions", "fargate", "ecs", "eks", "gke", "kubernetes", "app engine", "cloud run", "app service"}},
	{categoryStorage, []string{"s3", "storage", "ebs", "block store", "efs", "file system", "blob", "glacier", "disk"}},
}

func serviceCategory(service string) string {
	s := strings.ToLower(service)
	for _, c := range serviceCategories {
		for _, k := range c.keywords {
			if strings.Contains(s, k) {
				return c.category
			}
		}
	}
	return ""
}

var categoryMitigations = map[string][]string{
	categoryCompute: {
		"Right-size or stop underutilized instances",
		"Review autoscaling minimums and scale-in policies",
		"Cover steady baseline usage with reservations or savings plans",
	},
	categoryStorage: {
		"Apply lifecycle policies to move cold data to cheaper tiers",
		"Delete orphaned volumes and outdated snapshots",
	},
	categoryDatabase: {
		"Right-size database instances to observed load",
		"Review provisioned capacity and read replicas",
		"Consider reserved capacity for steady database workloads",
	},
}

// keywordMitigations adds suggestions when a cause mentions one of the keywords
var keywordMitigations = []struct {
	keywords    []string
	suggestions []string
}{
	{
		keywords: []string{"instance"},
		suggestions: []string{
			"Audit recently launched instances and terminate the ones no longer needed",
			"Set instance count limits on autoscaling groups",
		},
	},
	{
		keywords: []string{"reserv", "savings plan", "commit"},
		suggestions: []string{
			"Renew or replace the expired commitment to restore discounted rates",
			"Set up expiration alerts for reservations and commitments",
		},
	},
	{
		keywords: []string{"network", "data transfer", "egress", "bandwidth"},
		suggestions: []string{
			"Review cross-region and internet egress paths",
			"Serve static content through a CDN or private endpoints to cut transfer charges",
		},
	},
}
