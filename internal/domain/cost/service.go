package cost

import (
	"context"
	"time"
)

// Service defines the cost ingestion service interface
type Service interface {
	// Ingest stores caller-supplied cost rows
	Ingest(ctx context.Context, userID int64, costs []*Cost) (int, error)

	// SyncCosts pulls the last days of billing data from one provider
	SyncCosts(ctx context.Context, userID int64, provider string, days int) (*SyncResult, error)

	// SyncAllProviders syncs every configured provider, continuing past failures
	SyncAllProviders(ctx context.Context, userID int64, days int) ([]*SyncResult, error)

	// GetCosts returns stored rows within a date range
	GetCosts(ctx context.Context, userID int64, filter Filter, startDate, endDate time.Time) ([]*Cost, error)

	// GetSummary aggregates stored rows within a date range
	GetSummary(ctx context.Context, userID int64, filter Filter, startDate, endDate time.Time) (*CostSummary, error)
}
