package cost

import (
	"context"
	"time"
)

// Repository defines the cost repository interface
type Repository interface {
	// UpsertCosts stores rows keyed by (user, provider, service, region, resource, date),
	// replacing the amount of rows that already exist. It returns the number of rows written.
	UpsertCosts(ctx context.Context, costs []*Cost) (int, error)

	// GetCostsByDateRange retrieves costs within an inclusive date range, oldest first
	GetCostsByDateRange(ctx context.Context, userID int64, filter Filter, startDate, endDate time.Time) ([]*Cost, error)

	// GetCostSummary retrieves aggregated cost data
	GetCostSummary(ctx context.Context, userID int64, filter Filter, startDate, endDate time.Time) (*CostSummary, error)

	// DeleteCostsByDate removes rows older than beforeDate
	DeleteCostsByDate(ctx context.Context, userID int64, beforeDate time.Time) (int64, error)
}
