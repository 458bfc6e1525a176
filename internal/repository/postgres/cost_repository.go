package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
)

// CostRepository implements cost.Repository
type CostRepository struct {
	db *DB
}

// NewCostRepository creates a new cost repository
func NewCostRepository(db *DB) *CostRepository {
	return &CostRepository{db: db}
}

// UpsertCosts writes all rows in one transaction
func (r *CostRepository) UpsertCosts(ctx context.Context, costs []*cost.Cost) (int, error) {
	if len(costs) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert", "resource_costs", time.Since(start)) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.DatabaseError("Failed to start transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO resource_costs (id, user_id, resource_id, provider, region, service_name, resource_type, cost_date, daily_cost, currency, cost_details, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, service_name, region, resource_id, cost_date)
		DO UPDATE SET daily_cost = excluded.daily_cost, currency = excluded.currency,
			resource_type = excluded.resource_type, cost_details = excluded.cost_details, updated_at = excluded.updated_at
	`))
	if err != nil {
		return 0, errors.DatabaseError("Failed to prepare cost upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range costs {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Currency == "" {
			c.Currency = "USD"
		}
		c.CostDate = dayUTC(c.CostDate)
		c.CreatedAt, c.UpdatedAt = now, now

		resourceID := ""
		if c.ResourceID != nil {
			resourceID = *c.ResourceID
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.UserID, resourceID, c.Provider, c.Region, c.ServiceName, c.ResourceType,
			c.CostDate, c.DailyCost, c.Currency, nullableJSON(c.CostDetails), now, now,
		)
		if err != nil {
			return 0, errors.DatabaseError("Failed to store cost", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.DatabaseError("Failed to commit costs", err)
	}
	return len(costs), nil
}

// GetCostsByDateRange retrieves costs within a date range
func (r *CostRepository) GetCostsByDateRange(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) ([]*cost.Cost, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "resource_costs", time.Since(start)) }()

	query := `
		SELECT id, user_id, resource_id, provider, region, service_name, resource_type, cost_date, daily_cost, currency, cost_details, created_at, updated_at
		FROM resource_costs
		WHERE user_id = ? AND cost_date >= ? AND cost_date <= ?
	`
	query, args := applyCostFilter(query, []interface{}{userID, dayUTC(startDate), dayUTC(endDate)}, filter)
	query += " ORDER BY cost_date ASC, provider ASC, service_name ASC"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to query costs", err)
	}
	defer rows.Close()

	var costs []*cost.Cost
	for rows.Next() {
		c := &cost.Cost{}
		var resourceID string
		var dailyCost sql.NullFloat64
		var details sql.NullString
		err := rows.Scan(
			&c.ID, &c.UserID, &resourceID, &c.Provider, &c.Region, &c.ServiceName, &c.ResourceType,
			&c.CostDate, &dailyCost, &c.Currency, &details, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan cost", err)
		}
		if resourceID != "" {
			c.ResourceID = &resourceID
		}
		if dailyCost.Valid {
			c.DailyCost = cost.Amount(dailyCost.Float64)
		}
		if details.Valid && details.String != "" {
			c.CostDetails = []byte(details.String)
		}
		c.CostDate = c.CostDate.UTC()
		costs = append(costs, c)
	}

	return costs, rows.Err()
}

// GetCostSummary retrieves aggregated cost data
func (r *CostRepository) GetCostSummary(ctx context.Context, userID int64, filter cost.Filter, startDate, endDate time.Time) (*cost.CostSummary, error) {
	summary := &cost.CostSummary{
		Provider:   filter.Provider,
		Currency:   "USD",
		StartDate:  dayUTC(startDate),
		EndDate:    dayUTC(endDate),
		ByService:  make(map[string]float64),
		ByProvider: make(map[string]float64),
	}

	base := `
		SELECT provider, service_name, COALESCE(SUM(daily_cost), 0)
		FROM resource_costs
		WHERE user_id = ? AND cost_date >= ? AND cost_date <= ?
	`
	query, args := applyCostFilter(base, []interface{}{userID, summary.StartDate, summary.EndDate}, filter)
	query += " GROUP BY provider, service_name"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to summarize costs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider, service string
		var total float64
		if err := rows.Scan(&provider, &service, &total); err != nil {
			return nil, errors.DatabaseError("Failed to scan cost summary", err)
		}
		summary.ByService[service] += total
		summary.ByProvider[provider] += total
		summary.TotalCost += total
	}

	return summary, rows.Err()
}

// DeleteCostsByDate deletes rows older than beforeDate
func (r *CostRepository) DeleteCostsByDate(ctx context.Context, userID int64, beforeDate time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind("DELETE FROM resource_costs WHERE user_id = ? AND cost_date < ?"),
		userID, dayUTC(beforeDate),
	)
	if err != nil {
		return 0, errors.DatabaseError("Failed to delete costs", err)
	}
	return result.RowsAffected()
}

func applyCostFilter(query string, args []interface{}, filter cost.Filter) (string, []interface{}) {
	if filter.Provider != "" {
		query += " AND provider = ?"
		args = append(args, filter.Provider)
	}
	if filter.ServiceName != "" {
		query += " AND service_name = ?"
		args = append(args, filter.ServiceName)
	}
	if filter.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, filter.ResourceID)
	}
	if filter.Region != "" {
		query += " AND region = ?"
		args = append(args, filter.Region)
	}
	return query, args
}
